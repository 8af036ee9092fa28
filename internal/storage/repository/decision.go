package repository

import (
	"database/sql"

	"github.com/kirillm/powertrader/internal/domain"
)

// DecisionRepository реализует работу с архивом решений стратегии
type DecisionRepository struct {
	db *sql.DB
}

// NewDecisionRepository создает новый репозиторий решений
func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Save сохраняет решение
func (r *DecisionRepository) Save(d *domain.Decision) error {
	query := `
		INSERT INTO decisions (decision_id, ts, symbol, action, long_level, short_level, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(query, d.ID, d.Timestamp, d.Symbol, d.Action, d.LongLevel, d.ShortLevel, d.Reason)
	return err
}

// CountByAction считает решения по типу за все время
func (r *DecisionRepository) CountByAction(action string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM decisions WHERE action = $1`, action).Scan(&n)
	return n, err
}
