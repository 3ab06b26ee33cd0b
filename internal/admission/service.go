package admission

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/database"
	"gatekeeper-bot/internal/models"
	"gatekeeper-bot/internal/telegram"
	"gatekeeper-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

type Store interface {
	CreateRequest(ctx context.Context, req *models.JoinRequest) error
	GetRequest(ctx context.Context, id int64) (*models.JoinRequest, error)
	LatestPendingRequest(ctx context.Context, userID int64) (*models.JoinRequest, error)
	AddInteraction(ctx context.Context, requestID int64, text string, isBot bool) error
	MarkCaptchaSolved(ctx context.Context, requestID int64) error
	AddQuestion(ctx context.Context, requestID int64, questionID int, text string) error
	SaveAnswer(ctx context.Context, requestID int64, questionID int, answer string) error
	AdvanceQuestion(ctx context.Context, requestID int64, from, to int) error
	CompleteQuestionnaire(ctx context.Context, requestID int64) error
	ListAnswers(ctx context.Context, requestID int64) ([]models.Answer, error)
	SaveAdminMessage(ctx context.Context, ref models.AdminMessageRef) error
	ListAdminMessages(ctx context.Context, requestID int64) ([]models.AdminMessageRef, error)
	DecideRequest(ctx context.Context, requestID int64, status models.RequestStatus, adminID int64) (bool, error)
	ReopenRequest(ctx context.Context, requestID int64, status models.RequestStatus) error
}

type Gateway interface {
	SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error)
	EditMessageText(chatID int64, messageID int, text string, markup *telebot.ReplyMarkup) error
	ApproveJoinRequest(chatID, userID int64) error
	DeclineJoinRequest(chatID, userID int64) error
	AnswerCallback(callbackID, text string) error
}

type Service struct {
	store     Store
	gw        Gateway
	notifier  *telegram.Notifier
	cfg       config.BotConfig
	questions []string
	captcha   func() string
	now       func() time.Time
}

type Option func(*Service)

func WithCaptcha(gen func() string) Option {
	return func(s *Service) { s.captcha = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithQuestions(questions []string) Option {
	return func(s *Service) { s.questions = questions }
}

func NewService(store Store, gw Gateway, cfg config.BotConfig, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gw:        gw,
		notifier:  telegram.NewNotifier(gw, cfg.Admins),
		cfg:       cfg,
		questions: Questions,
		captcha:   randomCaptcha,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomCaptcha() string {
	return strconv.Itoa(1000 + rand.Intn(9000))
}

func (s *Service) HandleJoinRequest(ctx context.Context, jr *telegram.JoinRequest) error {
	if jr.ChatID != s.cfg.ChannelID {
		logger.Debug("Ignoring join request for foreign chat",
			logger.Int64("chat_id", jr.ChatID),
			logger.Int64("user_id", jr.From.ID),
		)
		return nil
	}

	firstName := jr.From.FirstName
	if firstName == "" {
		firstName = defaultFirstName
	}

	req := &models.JoinRequest{
		UserID:        jr.From.ID,
		Username:      jr.From.Username,
		FirstName:     firstName,
		LastName:      jr.From.LastName,
		ChatID:        jr.ChatID,
		Status:        models.StatusPending,
		CaptchaAnswer: s.captcha(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("create join request: %w", err)
	}

	logger.Info("Join request created",
		logger.Int64("request_id", req.ID),
		logger.Int64("user_id", req.UserID),
	)

	if err := s.sendToApplicant(ctx, req, captchaPrompt(firstName, req.CaptchaAnswer)); err != nil {
		return fmt.Errorf("send captcha: %w", err)
	}

	return s.fanOutAlert(ctx, req)
}

func (s *Service) fanOutAlert(ctx context.Context, req *models.JoinRequest) error {
	text := newRequestAlert(req)
	markup := telegram.DecisionKeyboard(req.ID)

	var errs []error
	for _, adminID := range s.cfg.Admins {
		messageID, err := s.gw.SendMessage(adminID, text, markup)
		if err != nil {
			errs = append(errs, fmt.Errorf("alert admin %d: %w", adminID, err))
			continue
		}

		ref := models.AdminMessageRef{RequestID: req.ID, AdminID: adminID, MessageID: messageID}
		if err := s.store.SaveAdminMessage(ctx, ref); err != nil {
			errs = append(errs, fmt.Errorf("save admin message: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HandleUserMessage feeds a private text message into the applicant's pending
// request. It reports false when the sender has no pending request.
func (s *Service) HandleUserMessage(ctx context.Context, msg *telegram.Message) (bool, error) {
	if msg.From == nil || msg.Text == "" {
		return false, nil
	}

	req, err := s.store.LatestPendingRequest(ctx, msg.From.ID)
	if errors.Is(err, database.ErrRequestNotFound) {
		return false, nil
	}
	if err != nil {
		return true, fmt.Errorf("find pending request: %w", err)
	}

	text := strings.TrimSpace(msg.Text)
	if err := s.store.AddInteraction(ctx, req.ID, text, false); err != nil {
		return true, fmt.Errorf("archive interaction: %w", err)
	}

	switch req.Stage() {
	case models.StageCaptcha:
		return true, s.checkCaptcha(ctx, req, text)
	case models.StageQuestionnaire:
		return true, s.recordAnswer(ctx, req, text)
	default:
		logger.Debug("Message for idle request",
			logger.Int64("request_id", req.ID),
			logger.Int64("user_id", req.UserID),
		)
		return true, nil
	}
}

func (s *Service) checkCaptcha(ctx context.Context, req *models.JoinRequest, answer string) error {
	if answer != req.CaptchaAnswer {
		logger.Info("Wrong captcha answer",
			logger.Int64("request_id", req.ID),
			logger.Int64("user_id", req.UserID),
		)
		sendErr := s.sendToApplicant(ctx, req, textWrongCaptcha)
		notifyErr := s.notifier.NotifyRequest(req.ID, captchaFailedAdmin(req, answer))
		return errors.Join(sendErr, notifyErr)
	}

	if err := s.store.MarkCaptchaSolved(ctx, req.ID); err != nil {
		if errors.Is(err, database.ErrStaleRequest) {
			logger.Info("Captcha already solved", logger.Int64("request_id", req.ID))
			return nil
		}
		return fmt.Errorf("mark captcha solved: %w", err)
	}

	if err := s.askQuestion(ctx, req, 1, "✅ Капча решена верно!\n\nТеперь ответьте на несколько вопросов:"); err != nil {
		return err
	}

	return s.notifier.NotifyRequest(req.ID, captchaSolvedAdmin(req))
}

func (s *Service) askQuestion(ctx context.Context, req *models.JoinRequest, number int, header string) error {
	question := s.questions[number-1]
	if err := s.store.AddQuestion(ctx, req.ID, number, question); err != nil {
		return fmt.Errorf("add question %d: %w", number, err)
	}
	if err := s.sendToApplicant(ctx, req, questionPrompt(header, number, len(s.questions), question)); err != nil {
		return fmt.Errorf("send question %d: %w", number, err)
	}
	return nil
}

func (s *Service) recordAnswer(ctx context.Context, req *models.JoinRequest, answer string) error {
	current := req.CurrentQuestion
	if err := s.store.SaveAnswer(ctx, req.ID, current, answer); err != nil {
		return fmt.Errorf("save answer %d: %w", current, err)
	}

	if current < len(s.questions) {
		next := current + 1
		if err := s.store.AdvanceQuestion(ctx, req.ID, current, next); err != nil {
			if errors.Is(err, database.ErrStaleRequest) {
				logger.Info("Question already advanced", logger.Int64("request_id", req.ID))
				return nil
			}
			return fmt.Errorf("advance question: %w", err)
		}
		return s.askQuestion(ctx, req, next, "✅ Ответ сохранен!")
	}

	if err := s.store.CompleteQuestionnaire(ctx, req.ID); err != nil {
		if errors.Is(err, database.ErrStaleRequest) {
			return nil
		}
		return fmt.Errorf("complete questionnaire: %w", err)
	}

	logger.Info("Questionnaire completed",
		logger.Int64("request_id", req.ID),
		logger.Int64("user_id", req.UserID),
	)

	if err := s.sendToApplicant(ctx, req, textCompleted); err != nil {
		return fmt.Errorf("send completion: %w", err)
	}

	answers, err := s.store.ListAnswers(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}
	return s.notifier.Notify(transcript(req, answers))
}

func (s *Service) sendToApplicant(ctx context.Context, req *models.JoinRequest, text string) error {
	if _, err := s.gw.SendMessage(req.UserID, text, nil); err != nil {
		return err
	}
	return s.store.AddInteraction(ctx, req.ID, text, true)
}

func (s *Service) HandleDecision(ctx context.Context, cb *telegram.Callback) error {
	decision, requestID, ok := telegram.ParseDecision(cb.Data)
	if !ok {
		return s.gw.AnswerCallback(cb.ID, "")
	}

	if !s.cfg.IsAdmin(cb.From.ID) {
		logger.Warn("Unauthorized decision attempt",
			logger.Int64("user_id", cb.From.ID),
			logger.Int64("request_id", requestID),
		)
		return s.gw.AnswerCallback(cb.ID, textNoRights)
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, database.ErrRequestNotFound) {
		return s.gw.AnswerCallback(cb.ID, textNotFound)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("get request: %w", err), s.gw.AnswerCallback(cb.ID, textDecideFailed))
	}

	status := models.StatusRejected
	if decision == telegram.DecisionApprove {
		status = models.StatusApproved
	}

	if req.Status != models.StatusPending {
		return s.gw.AnswerCallback(cb.ID, "ℹ️ Заявка уже обработана: "+statusLabel(req.Status))
	}

	claimed, err := s.store.DecideRequest(ctx, req.ID, status, cb.From.ID)
	if err != nil {
		return errors.Join(fmt.Errorf("decide request: %w", err), s.gw.AnswerCallback(cb.ID, textDecideFailed))
	}
	if !claimed {
		return s.gw.AnswerCallback(cb.ID, "ℹ️ Заявка уже обработана другим администратором")
	}

	if err := s.applyDecision(req, status); err != nil {
		var errs []error
		errs = append(errs, fmt.Errorf("apply decision: %w", err))
		if rerr := s.store.ReopenRequest(ctx, req.ID, status); rerr != nil {
			errs = append(errs, fmt.Errorf("reopen request: %w", rerr))
		}
		errs = append(errs, s.gw.AnswerCallback(cb.ID, textDecideFailed))
		return errors.Join(errs...)
	}

	logger.Info("Join request decided",
		logger.Int64("request_id", req.ID),
		logger.String("status", string(status)),
		logger.Int64("admin_id", cb.From.ID),
	)

	var errs []error
	notice := textRejected
	if status == models.StatusApproved {
		notice = textApproved
	}
	if err := s.sendToApplicant(ctx, req, notice); err != nil {
		errs = append(errs, fmt.Errorf("notify applicant: %w", err))
	}

	errs = append(errs, s.rewriteAlerts(ctx, req, status, adminName(cb.From)))
	errs = append(errs, s.gw.AnswerCallback(cb.ID, "Заявка "+statusLabel(status)))

	return errors.Join(errs...)
}

func (s *Service) applyDecision(req *models.JoinRequest, status models.RequestStatus) error {
	if status == models.StatusApproved {
		return s.gw.ApproveJoinRequest(s.cfg.ChannelID, req.UserID)
	}
	return s.gw.DeclineJoinRequest(s.cfg.ChannelID, req.UserID)
}

func (s *Service) rewriteAlerts(ctx context.Context, req *models.JoinRequest, status models.RequestStatus, admin string) error {
	refs, err := s.store.ListAdminMessages(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("list admin messages: %w", err)
	}

	text := decidedAlert(req, status, admin, s.now())

	var errs []error
	for _, ref := range refs {
		if err := s.gw.EditMessageText(ref.AdminID, ref.MessageID, text, nil); err != nil {
			errs = append(errs, fmt.Errorf("edit alert for admin %d: %w", ref.AdminID, err))
		}
	}
	return errors.Join(errs...)
}

func adminName(u telegram.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}
