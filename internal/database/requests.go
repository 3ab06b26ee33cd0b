package database

import (
	"context"
	"errors"

	"gatekeeper-bot/internal/models"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `
	id, user_id, COALESCE(username, ''), first_name, last_name, chat_id, status,
	captcha_answer, captcha_solved, current_question, completed_questions,
	created_at, decided_by, decided_at`

type RequestRepository struct {
	db *DB
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func scanRequest(row pgx.Row) (*models.JoinRequest, error) {
	var req models.JoinRequest
	err := row.Scan(
		&req.ID, &req.UserID, &req.Username, &req.FirstName, &req.LastName,
		&req.ChatID, &req.Status, &req.CaptchaAnswer, &req.CaptchaSolved,
		&req.CurrentQuestion, &req.CompletedQuestions, &req.CreatedAt,
		&req.DecidedBy, &req.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) CreateRequest(ctx context.Context, req *models.JoinRequest) error {
	query := `
		INSERT INTO requests (user_id, username, first_name, last_name, chat_id, status, captcha_answer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	err := r.db.Pool.QueryRow(ctx, query,
		req.UserID, nullable(req.Username), req.FirstName, req.LastName,
		req.ChatID, req.Status, req.CaptchaAnswer,
	).Scan(&req.ID, &req.CreatedAt)
	return queryErr("create request", err)
}

func (r *RequestRepository) GetRequest(ctx context.Context, id int64) (*models.JoinRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	req, err := scanRequest(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, queryErr("get request", err)
	}
	return req, nil
}

func (r *RequestRepository) LatestPendingRequest(ctx context.Context, userID int64) (*models.JoinRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	req, err := scanRequest(r.db.Pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, queryErr("get pending request", err)
	}
	return req, nil
}

func (r *RequestRepository) AddInteraction(ctx context.Context, requestID int64, text string, isBot bool) error {
	query := `
		INSERT INTO interactions (request_id, message_text, is_bot_message)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Pool.Exec(ctx, query, requestID, text, isBot)
	return queryErr("add interaction", err)
}

func (r *RequestRepository) MarkCaptchaSolved(ctx context.Context, requestID int64) error {
	query := `
		UPDATE requests
		SET captcha_solved = TRUE, current_question = 1
		WHERE id = $1 AND captcha_solved = FALSE AND status = 'pending'
	`
	tag, err := r.db.Pool.Exec(ctx, query, requestID)
	if err != nil {
		return queryErr("mark captcha solved", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRequest
	}
	return nil
}

func (r *RequestRepository) AddQuestion(ctx context.Context, requestID int64, questionID int, text string) error {
	query := `
		INSERT INTO answers (request_id, question_id, question_text)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id, question_id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query, requestID, questionID, text)
	return queryErr("add question", err)
}

func (r *RequestRepository) SaveAnswer(ctx context.Context, requestID int64, questionID int, answer string) error {
	query := `
		UPDATE answers
		SET answer_text = $3
		WHERE request_id = $1 AND question_id = $2
	`
	_, err := r.db.Pool.Exec(ctx, query, requestID, questionID, answer)
	return queryErr("save answer", err)
}

// AdvanceQuestion moves the request from question `from` to `to` only if no
// one else has moved it already.
func (r *RequestRepository) AdvanceQuestion(ctx context.Context, requestID int64, from, to int) error {
	query := `
		UPDATE requests
		SET current_question = $3
		WHERE id = $1 AND current_question = $2 AND completed_questions = FALSE
	`
	tag, err := r.db.Pool.Exec(ctx, query, requestID, from, to)
	if err != nil {
		return queryErr("advance question", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRequest
	}
	return nil
}

func (r *RequestRepository) CompleteQuestionnaire(ctx context.Context, requestID int64) error {
	query := `
		UPDATE requests
		SET completed_questions = TRUE
		WHERE id = $1 AND completed_questions = FALSE
	`
	tag, err := r.db.Pool.Exec(ctx, query, requestID)
	if err != nil {
		return queryErr("complete questionnaire", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRequest
	}
	return nil
}

func (r *RequestRepository) ListAnswers(ctx context.Context, requestID int64) ([]models.Answer, error) {
	query := `
		SELECT id, request_id, question_id, question_text, answer_text, created_at
		FROM answers
		WHERE request_id = $1
		ORDER BY question_id
	`
	rows, err := r.db.Pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, queryErr("list answers", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.RequestID, &a.QuestionID, &a.QuestionText, &a.AnswerText, &a.CreatedAt); err != nil {
			return nil, queryErr("scan answer", err)
		}
		answers = append(answers, a)
	}
	return answers, queryErr("list answers", rows.Err())
}

func (r *RequestRepository) SaveAdminMessage(ctx context.Context, ref models.AdminMessageRef) error {
	query := `
		INSERT INTO admin_messages (request_id, admin_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id, admin_id) DO UPDATE SET
			message_id = EXCLUDED.message_id
	`
	_, err := r.db.Pool.Exec(ctx, query, ref.RequestID, ref.AdminID, ref.MessageID)
	return queryErr("save admin message", err)
}

func (r *RequestRepository) ListAdminMessages(ctx context.Context, requestID int64) ([]models.AdminMessageRef, error) {
	query := `
		SELECT request_id, admin_id, message_id
		FROM admin_messages
		WHERE request_id = $1
		ORDER BY admin_id
	`
	rows, err := r.db.Pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, queryErr("list admin messages", err)
	}
	defer rows.Close()

	var refs []models.AdminMessageRef
	for rows.Next() {
		var ref models.AdminMessageRef
		if err := rows.Scan(&ref.RequestID, &ref.AdminID, &ref.MessageID); err != nil {
			return nil, queryErr("scan admin message", err)
		}
		refs = append(refs, ref)
	}
	return refs, queryErr("list admin messages", rows.Err())
}

// DecideRequest moves a pending request to its final status. It returns false
// when the request was no longer pending.
func (r *RequestRepository) DecideRequest(ctx context.Context, requestID int64, status models.RequestStatus, adminID int64) (bool, error) {
	query := `
		UPDATE requests
		SET status = $2, decided_by = $3, decided_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Pool.Exec(ctx, query, requestID, status, adminID)
	if err != nil {
		return false, queryErr("decide request", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReopenRequest undoes a decision that could not be delivered to Telegram.
func (r *RequestRepository) ReopenRequest(ctx context.Context, requestID int64, status models.RequestStatus) error {
	query := `
		UPDATE requests
		SET status = 'pending', decided_by = NULL, decided_at = NULL
		WHERE id = $1 AND status = $2
	`
	_, err := r.db.Pool.Exec(ctx, query, requestID, status)
	return queryErr("reopen request", err)
}

func (r *RequestRepository) RequestStats(ctx context.Context) (models.RequestStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM requests
	`
	var s models.RequestStats
	err := r.db.Pool.QueryRow(ctx, query).Scan(&s.Total, &s.Approved, &s.Rejected, &s.Pending)
	return s, queryErr("request stats", err)
}
