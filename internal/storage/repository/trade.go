package repository

import (
	"database/sql"

	"github.com/kirillm/powertrader/internal/domain"
)

// TradeRepository реализует работу с архивом сделок
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый репозиторий сделок
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Save сохраняет исполненную сделку
func (r *TradeRepository) Save(trade *domain.TradeRecord) error {
	query := `
		INSERT INTO trades (ts, symbol, side, tag, quantity, price, fees_usd, avg_cost_basis, pnl_pct, realized_profit_usd, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var realized sql.NullFloat64
	if trade.RealizedProfitUSD != nil {
		realized = sql.NullFloat64{Float64: *trade.RealizedProfitUSD, Valid: true}
	}
	_, err := r.db.Exec(
		query,
		trade.Timestamp,
		trade.Symbol,
		trade.Side,
		trade.Tag,
		trade.Quantity,
		trade.Price,
		trade.FeesUSD,
		trade.AvgCostBasis,
		trade.PnLPct,
		realized,
		trade.OrderID,
	)
	return err
}

// GetRecent получает последние N сделок по символу
func (r *TradeRepository) GetRecent(symbol string, limit int) ([]domain.TradeRecord, error) {
	query := `
		SELECT ts, symbol, side, tag, quantity, price, fees_usd, avg_cost_basis, pnl_pct, realized_profit_usd, order_id
		FROM trades
		WHERE symbol = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := r.db.Query(query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var realized sql.NullFloat64
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &t.Side, &t.Tag, &t.Quantity,
			&t.Price, &t.FeesUSD, &t.AvgCostBasis, &t.PnLPct, &realized, &t.OrderID); err != nil {
			return nil, err
		}
		if realized.Valid {
			v := realized.Float64
			t.RealizedProfitUSD = &v
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
