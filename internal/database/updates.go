package database

import (
	"context"

	"gatekeeper-bot/internal/models"
)

type UpdateLogRepository struct {
	db *DB
}

func NewUpdateLogRepository(db *DB) *UpdateLogRepository {
	return &UpdateLogRepository{db: db}
}

func (r *UpdateLogRepository) Save(ctx context.Context, u *models.RawUpdate) error {
	query := `
		INSERT INTO raw_updates (update_id, payload, received_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, received_at
	`
	var receivedAt any
	if !u.ReceivedAt.IsZero() {
		receivedAt = u.ReceivedAt
	}
	err := r.db.Pool.QueryRow(ctx, query, u.UpdateID, u.Payload, receivedAt).Scan(&u.ID, &u.ReceivedAt)
	return queryErr("save raw update", err)
}

func (r *UpdateLogRepository) Archive(ctx context.Context, updateID int64, payload []byte) error {
	return r.Save(ctx, &models.RawUpdate{UpdateID: updateID, Payload: string(payload)})
}
