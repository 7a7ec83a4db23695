package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/internal/notify"
	"presentos/pkg/outbox"
	"presentos/pkg/trace"
)

// NotificationRepository 通知表；新通知与 outbox 事件在同一事务写入
type NotificationRepository struct {
	db        *pgxpool.Pool
	outbox    *outbox.Repository
	retention int
	logger    *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, retention int, logger *zap.Logger) *NotificationRepository {
	if retention <= 0 {
		retention = notify.DefaultRetention
	}
	return &NotificationRepository{db: db, outbox: outboxRepo, retention: retention, logger: logger}
}

// Upsert relies on the partial unique index notifications_unread_dedup (type, subject, day) WHERE NOT read.
func (r *NotificationRepository) Upsert(ctx context.Context, n model.Notification, day string) (model.Notification, bool, error) {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO notifications (id, type, subject, title, body, priority, metadata, day, created_at, read)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
        ON CONFLICT (type, subject, day) WHERE NOT read
        DO UPDATE SET title = EXCLUDED.title,
                      body = EXCLUDED.body,
                      priority = EXCLUDED.priority,
                      metadata = EXCLUDED.metadata,
                      created_at = EXCLUDED.created_at
        RETURNING id, (xmax <> 0) AS deduplicated
    `
	var id string
	var dedup bool
	err = tx.QueryRow(ctx, query,
		n.ID, n.Type, n.Subject, n.Title, n.Body, n.Priority, metadata, day, n.CreatedAt,
	).Scan(&id, &dedup)
	if err != nil {
		return model.Notification{}, false, fmt.Errorf("upsert notification: %w", err)
	}
	n.ID = id

	if !dedup {
		payload := model.NotificationCreatedPayload{
			NotificationID: n.ID,
			Type:           n.Type,
			Subject:        n.Subject,
			Title:          n.Title,
			Body:           n.Body,
			Priority:       n.Priority,
			CreatedAt:      n.CreatedAt,
			RequestID:      trace.FromContext(ctx),
		}
		if _, err := r.outbox.Append(ctx, tx, "notification", n.ID, model.EventNotificationCreated, payload); err != nil {
			return model.Notification{}, false, err
		}

		_, err = tx.Exec(ctx, `
            DELETE FROM notifications
            WHERE id IN (SELECT id FROM notifications ORDER BY created_at DESC OFFSET $1)
        `, r.retention)
		if err != nil {
			return model.Notification{}, false, fmt.Errorf("trim notifications: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Notification{}, false, fmt.Errorf("commit: %w", err)
	}
	return n, dedup, nil
}

func (r *NotificationRepository) List(ctx context.Context, f model.NotificationFilter) ([]model.Notification, error) {
	var where []string
	var args []any
	if f.UnreadOnly {
		where = append(where, "NOT read")
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	query := `SELECT id, type, subject, title, body, priority, metadata, created_at, read FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.Type, &n.Subject, &n.Title, &n.Body, &n.Priority, &metadata, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				r.logger.Warn("bad notification metadata", zap.String("id", n.ID), zap.Error(err))
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE NOT read`)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE NOT read`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkDelivered records that the worker pushed the notification out.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id, channel string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO notification_deliveries (notification_id, channel, delivered_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (notification_id, channel) DO NOTHING
    `, id, channel)
	return err
}
