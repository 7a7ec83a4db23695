package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"presentos/internal/ledger"
	"presentos/internal/model"
)

// LedgerRepository 单行账本，version 列做乐观锁
type LedgerRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLedgerRepository(db *pgxpool.Pool, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

const ledgerRowID = 1

func (r *LedgerRepository) Load(ctx context.Context) (model.ExperienceBalance, error) {
	query := `
        SELECT p, a, e, i, total, level, version
        FROM experience_ledger
        WHERE id = $1
    `
	var b model.ExperienceBalance
	err := r.db.QueryRow(ctx, query, ledgerRowID).Scan(&b.P, &b.A, &b.E, &b.I, &b.Total, &b.Level, &b.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ExperienceBalance{}, nil
	}
	if err != nil {
		return model.ExperienceBalance{}, fmt.Errorf("load ledger: %w", err)
	}
	return b, nil
}

// CompareAndSwap writes next when the stored version equals expected, else ledger.ErrLedgerConflict.
func (r *LedgerRepository) CompareAndSwap(ctx context.Context, expected int64, next model.ExperienceBalance) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var query string
	if expected == 0 {
		query = `
            INSERT INTO experience_ledger (id, p, a, e, i, total, level, version, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
            ON CONFLICT (id) DO NOTHING
        `
	} else {
		query = `
            UPDATE experience_ledger
            SET p = $2, a = $3, e = $4, i = $5, total = $6, level = $7, version = $8, updated_at = NOW()
            WHERE id = $1 AND version = $9
        `
	}
	args := []any{ledgerRowID, next.P, next.A, next.E, next.I, next.Total, next.Level, next.Version}
	if expected != 0 {
		args = append(args, expected)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("ledger version conflict", zap.Int64("expected", expected))
		return ledger.ErrLedgerConflict
	}

	// 流水表，便于审计
	_, err = tx.Exec(ctx, `
        INSERT INTO experience_events (p, a, e, i, total, version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
    `, next.P, next.A, next.E, next.I, next.Total, next.Version)
	if err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return tx.Commit(ctx)
}
