package admission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gatekeeper-bot/internal/database"
	"gatekeeper-bot/internal/models"

	"gopkg.in/telebot.v4"
)

type memStore struct {
	mu           sync.Mutex
	nextID       int64
	requests     map[int64]*models.JoinRequest
	interactions []models.Interaction
	answers      map[int64]map[int]*models.Answer
	adminMsgs    map[int64]map[int64]int
	failCreate   error
}

func newMemStore() *memStore {
	return &memStore{
		requests:  make(map[int64]*models.JoinRequest),
		answers:   make(map[int64]map[int]*models.Answer),
		adminMsgs: make(map[int64]map[int64]int),
	}
}

func (m *memStore) CreateRequest(_ context.Context, req *models.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.nextID++
	req.ID = m.nextID
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

// put stores a request under a fixed id.
func (m *memStore) put(req models.JoinRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = &req
	if req.ID > m.nextID {
		m.nextID = req.ID
	}
}

func (m *memStore) request(id int64) models.JoinRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *memStore) GetRequest(_ context.Context, id int64) (*models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, database.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memStore) LatestPendingRequest(_ context.Context, userID int64) (*models.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.JoinRequest
	for _, req := range m.requests {
		if req.UserID != userID || req.Status != models.StatusPending {
			continue
		}
		if latest == nil || req.ID > latest.ID {
			latest = req
		}
	}
	if latest == nil {
		return nil, database.ErrRequestNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) AddInteraction(_ context.Context, requestID int64, text string, isBot bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, models.Interaction{RequestID: requestID, Text: text, IsBotMessage: isBot})
	return nil
}

func (m *memStore) userInteractions(requestID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, i := range m.interactions {
		if i.RequestID == requestID && !i.IsBotMessage {
			out = append(out, i.Text)
		}
	}
	return out
}

func (m *memStore) MarkCaptchaSolved(_ context.Context, requestID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.requests[requestID]
	if req == nil || req.CaptchaSolved || req.Status != models.StatusPending {
		return database.ErrStaleRequest
	}
	req.CaptchaSolved = true
	req.CurrentQuestion = 1
	return nil
}

func (m *memStore) AddQuestion(_ context.Context, requestID int64, questionID int, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers[requestID] == nil {
		m.answers[requestID] = make(map[int]*models.Answer)
	}
	if _, ok := m.answers[requestID][questionID]; !ok {
		m.answers[requestID][questionID] = &models.Answer{RequestID: requestID, QuestionID: questionID, QuestionText: text}
	}
	return nil
}

func (m *memStore) SaveAnswer(_ context.Context, requestID int64, questionID int, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.answers[requestID][questionID]; ok {
		a.AnswerText = &answer
	}
	return nil
}

func (m *memStore) AdvanceQuestion(_ context.Context, requestID int64, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.requests[requestID]
	if req == nil || req.CurrentQuestion != from || req.CompletedQuestions {
		return database.ErrStaleRequest
	}
	req.CurrentQuestion = to
	return nil
}

func (m *memStore) CompleteQuestionnaire(_ context.Context, requestID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.requests[requestID]
	if req == nil || req.CompletedQuestions {
		return database.ErrStaleRequest
	}
	req.CompletedQuestions = true
	return nil
}

func (m *memStore) ListAnswers(_ context.Context, requestID int64) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Answer
	for _, a := range m.answers[requestID] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memStore) SaveAdminMessage(_ context.Context, ref models.AdminMessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adminMsgs[ref.RequestID] == nil {
		m.adminMsgs[ref.RequestID] = make(map[int64]int)
	}
	m.adminMsgs[ref.RequestID][ref.AdminID] = ref.MessageID
	return nil
}

func (m *memStore) ListAdminMessages(_ context.Context, requestID int64) ([]models.AdminMessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []models.AdminMessageRef
	for adminID, messageID := range m.adminMsgs[requestID] {
		refs = append(refs, models.AdminMessageRef{RequestID: requestID, AdminID: adminID, MessageID: messageID})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].AdminID < refs[j].AdminID })
	return refs, nil
}

func (m *memStore) DecideRequest(_ context.Context, requestID int64, status models.RequestStatus, adminID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.requests[requestID]
	if req == nil || req.Status != models.StatusPending {
		return false, nil
	}
	req.Status = status
	req.DecidedBy = &adminID
	return true, nil
}

func (m *memStore) ReopenRequest(_ context.Context, requestID int64, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.requests[requestID]
	if req != nil && req.Status == status {
		req.Status = models.StatusPending
		req.DecidedBy = nil
	}
	return nil
}

type sent struct {
	chatID int64
	text   string
	markup *telebot.ReplyMarkup
}

type edit struct {
	chatID    int64
	messageID int
	text      string
	markup    *telebot.ReplyMarkup
}

type fakeGateway struct {
	mu          sync.Mutex
	nextMsgID   int
	sent        []sent
	edits       []edit
	approved    []int64
	declined    []int64
	answers     map[string]string
	failSendTo  map[int64]bool
	failApprove bool
	failDecline bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextMsgID: 100, answers: make(map[string]string), failSendTo: make(map[int64]bool)}
}

func (g *fakeGateway) SendMessage(chatID int64, text string, markup *telebot.ReplyMarkup) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSendTo[chatID] {
		return 0, fmt.Errorf("sendMessage to %d: Forbidden: bot was blocked by the user", chatID)
	}
	g.nextMsgID++
	g.sent = append(g.sent, sent{chatID: chatID, text: text, markup: markup})
	return g.nextMsgID, nil
}

func (g *fakeGateway) EditMessageText(chatID int64, messageID int, text string, markup *telebot.ReplyMarkup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edits = append(g.edits, edit{chatID: chatID, messageID: messageID, text: text, markup: markup})
	return nil
}

func (g *fakeGateway) ApproveJoinRequest(_, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failApprove {
		return errors.New("approveChatJoinRequest: Bad Request: HIDE_REQUESTER_MISSING")
	}
	g.approved = append(g.approved, userID)
	return nil
}

func (g *fakeGateway) DeclineJoinRequest(_, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDecline {
		return errors.New("declineChatJoinRequest: Bad Request")
	}
	g.declined = append(g.declined, userID)
	return nil
}

func (g *fakeGateway) AnswerCallback(callbackID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers[callbackID] = text
	return nil
}

func (g *fakeGateway) sentTo(chatID int64) []sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sent
	for _, s := range g.sent {
		if s.chatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (g *fakeGateway) lastTo(chatID int64) string {
	msgs := g.sentTo(chatID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].text
}
