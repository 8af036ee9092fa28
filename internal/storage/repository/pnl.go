package repository

import (
	"database/sql"
	"time"
)

// PnLRepository реализует работу с кривой капитала
type PnLRepository struct {
	db *sql.DB
}

// NewPnLRepository создает новый репозиторий P&L
func NewPnLRepository(db *sql.DB) *PnLRepository {
	return &PnLRepository{db: db}
}

// SavePoint сохраняет точку кривой на момент вызова
func (r *PnLRepository) SavePoint(totalRealized, accountValue float64) error {
	query := `
		INSERT INTO pnl_history (ts, total_realized_usd, account_value_usd)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(query, time.Now(), totalRealized, accountValue)
	return err
}

// LatestRealized возвращает последнее зафиксированное значение реализованной прибыли
func (r *PnLRepository) LatestRealized() (float64, error) {
	var v float64
	err := r.db.QueryRow(`
		SELECT total_realized_usd FROM pnl_history
		ORDER BY ts DESC LIMIT 1
	`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}
