package models

import "time"

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

type Stage int

const (
	StageCaptcha Stage = iota
	StageQuestionnaire
	StageIdle
)

type JoinRequest struct {
	ID                 int64         `json:"id"`
	UserID             int64         `json:"user_id"`
	Username           string        `json:"username,omitempty"`
	FirstName          string        `json:"first_name"`
	LastName           string        `json:"last_name,omitempty"`
	ChatID             int64         `json:"chat_id"`
	Status             RequestStatus `json:"status"`
	CaptchaAnswer      string        `json:"captcha_answer"`
	CaptchaSolved      bool          `json:"captcha_solved"`
	CurrentQuestion    int           `json:"current_question"`
	CompletedQuestions bool          `json:"completed_questions"`
	CreatedAt          time.Time     `json:"created_at"`
	DecidedBy          *int64        `json:"decided_by,omitempty"`
	DecidedAt          *time.Time    `json:"decided_at,omitempty"`
}

// Stage reports where the applicant is in the flow. Idle covers a completed
// questionnaire and any inconsistent combination of flags.
func (r *JoinRequest) Stage() Stage {
	switch {
	case !r.CaptchaSolved:
		return StageCaptcha
	case !r.CompletedQuestions && r.CurrentQuestion > 0:
		return StageQuestionnaire
	default:
		return StageIdle
	}
}

func (r *JoinRequest) DisplayName() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return r.FirstName
}

type Interaction struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	Text         string    `json:"message_text"`
	IsBotMessage bool      `json:"is_bot_message"`
	CreatedAt    time.Time `json:"created_at"`
}

type Answer struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	QuestionID   int       `json:"question_id"`
	QuestionText string    `json:"question_text"`
	AnswerText   *string   `json:"answer_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type AdminMessageRef struct {
	RequestID int64 `json:"request_id"`
	AdminID   int64 `json:"admin_id"`
	MessageID int   `json:"message_id"`
}

type DeleteReason string

const (
	ReasonStopWord       DeleteReason = "stop_word"
	ReasonServiceMessage DeleteReason = "service_message"
)

type DeletedMessage struct {
	ID        int64        `json:"id"`
	MessageID int          `json:"message_id"`
	UserID    int64        `json:"user_id"`
	Reason    DeleteReason `json:"reason"`
	Text      string       `json:"message_text"`
	DeletedAt time.Time    `json:"deleted_at"`
}

type Violator struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name,omitempty"`
	Violations    int       `json:"violations"`
	LastViolation time.Time `json:"last_violation"`
}

type RequestStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

type RawUpdate struct {
	ID         int64     `json:"id"`
	UpdateID   int64     `json:"update_id"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}
