package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kirillm/powertrader/internal/domain"
	"github.com/kirillm/powertrader/internal/storage/repository"
)

// PostgresArchive является фасадом для зеркалирования истории в PostgreSQL.
// Файлы hub-каталога остаются источником истины, база нужна только для
// долгосрочного анализа, поэтому всякая ошибка архива не фатальна.
type PostgresArchive struct {
	db        *sql.DB
	trades    *repository.TradeRepository
	decisions *repository.DecisionRepository
	pnl       *repository.PnLRepository
}

// NewPostgresArchive подключается по DSN и прогоняет миграции
func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &PostgresArchive{
		db:        db,
		trades:    repository.NewTradeRepository(db),
		decisions: repository.NewDecisionRepository(db),
		pnl:       repository.NewPnLRepository(db),
	}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return a, nil
}

func (a *PostgresArchive) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			tag VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			fees_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_cost_basis DECIMAL(20, 8) NOT NULL DEFAULT 0,
			pnl_pct DECIMAL(10, 4),
			realized_profit_usd DECIMAL(20, 8),
			order_id VARCHAR(100)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, ts)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id SERIAL PRIMARY KEY,
			decision_id VARCHAR(40) NOT NULL,
			ts TIMESTAMP NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(20) NOT NULL,
			long_level INT NOT NULL DEFAULT 0,
			short_level INT NOT NULL DEFAULT 0,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON decisions(symbol, ts)`,
		`CREATE TABLE IF NOT EXISTS pnl_history (
			id SERIAL PRIMARY KEY,
			ts TIMESTAMP NOT NULL,
			total_realized_usd DECIMAL(20, 8) NOT NULL,
			account_value_usd DECIMAL(20, 8) NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := a.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveTrade зеркалирует сделку в архив
func (a *PostgresArchive) SaveTrade(trade *domain.TradeRecord) error {
	return a.trades.Save(trade)
}

// SaveDecision зеркалирует решение стратегии в архив
func (a *PostgresArchive) SaveDecision(d *domain.Decision) error {
	return a.decisions.Save(d)
}

// SavePnLPoint зеркалирует точку кривой капитала в архив
func (a *PostgresArchive) SavePnLPoint(totalRealized, accountValue float64) error {
	return a.pnl.SavePoint(totalRealized, accountValue)
}

// Close закрывает соединение с базой
func (a *PostgresArchive) Close() error {
	return a.db.Close()
}
