package database

import (
	"context"

	"gatekeeper-bot/internal/models"
)

const maxDeletedTextLength = 3000

type ModerationRepository struct {
	db *DB
}

func NewModerationRepository(db *DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

func (r *ModerationRepository) RecordDeletedMessage(ctx context.Context, msg *models.DeletedMessage) error {
	query := `
		INSERT INTO deleted_messages (message_id, user_id, reason, message_text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, deleted_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		msg.MessageID, msg.UserID, msg.Reason, truncate(msg.Text, maxDeletedTextLength),
	).Scan(&msg.ID, &msg.DeletedAt)
	return queryErr("record deleted message", err)
}

// RecordViolation inserts the violator or bumps the counter of an existing
// one, returning the counter after the update.
func (r *ModerationRepository) RecordViolation(ctx context.Context, v *models.Violator) (int, error) {
	query := `
		INSERT INTO violators (user_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			violations = violators.violations + 1,
			last_violation = NOW()
		RETURNING id, violations, last_violation
	`
	err := r.db.Pool.QueryRow(ctx, query,
		v.UserID, nullable(v.Username), v.FirstName, v.LastName,
	).Scan(&v.ID, &v.Violations, &v.LastViolation)
	if err != nil {
		return 0, queryErr("record violation", err)
	}
	return v.Violations, nil
}

func (r *ModerationRepository) CountViolators(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM violators").Scan(&count)
	return count, queryErr("count violators", err)
}
