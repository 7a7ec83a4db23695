package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"presentos/internal/model"
)

type GoalRepository struct {
	db *pgxpool.Pool
}

func NewGoalRepository(db *pgxpool.Pool) *GoalRepository {
	return &GoalRepository{db: db}
}

// ActiveGoal returns the highest-priority active goal, nil when there is none.
func (r *GoalRepository) ActiveGoal(ctx context.Context) (*model.Goal, error) {
	query := `
        SELECT id, name, purpose, result, priority, status, xp_target, progress
        FROM goals
        WHERE status = 'active'
        ORDER BY priority DESC, created_at ASC
        LIMIT 1
    `
	var g model.Goal
	err := r.db.QueryRow(ctx, query).Scan(
		&g.ID,
		&g.Name,
		&g.Purpose,
		&g.Result,
		&g.Priority,
		&g.Status,
		&g.XPTarget,
		&g.Progress,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// AddProgress 累加目标进度
func (r *GoalRepository) AddProgress(ctx context.Context, id string, xp int) error {
	_, err := r.db.Exec(ctx, `UPDATE goals SET progress = progress + $2, updated_at = NOW() WHERE id = $1`, id, xp)
	return err
}
