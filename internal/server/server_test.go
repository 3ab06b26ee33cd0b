package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/telegram"
)

const joinPayload = `{"update_id":77,"chat_join_request":{"chat":{"id":-100123,"type":"channel"},"from":{"id":555,"first_name":"Ann"},"date":1700000000}}`

type recordingDispatcher struct {
	mu      sync.Mutex
	updates []*telegram.Update
	ctxErr  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, u *telegram.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, u)
	d.ctxErr = ctx.Err()
}

type memArchive struct {
	ids      []int64
	payloads []string
	err      error
}

func (a *memArchive) Archive(_ context.Context, id int64, payload []byte) error {
	a.ids = append(a.ids, id)
	a.payloads = append(a.payloads, string(payload))
	return a.err
}

type memDedup struct {
	seen map[int64]bool
	err  error
}

func (d *memDedup) FirstSeen(_ context.Context, id int64) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func testConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Port:           8080,
		WebhookPath:    "/webhook",
		HealthEndpoint: "/healthz",
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
	}
}

func post(h http.Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(testConfig(), "", &recordingDispatcher{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestWebhookSecret(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		wantStatus int
		wantCalls  int
	}{
		{"matching secret", "s3cret", "s3cret", http.StatusOK, 1},
		{"wrong secret", "s3cret", "nope", http.StatusUnauthorized, 0},
		{"missing secret", "s3cret", "", http.StatusUnauthorized, 0},
		{"no secret configured", "", "", http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDispatcher{}
			s := New(testConfig(), tt.configured, d)

			rec := post(s.Routes(), joinPayload, tt.sent)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(d.updates) != tt.wantCalls {
				t.Errorf("dispatched = %d, want %d", len(d.updates), tt.wantCalls)
			}
		})
	}
}

func TestWebhookDispatchesDecodedUpdate(t *testing.T) {
	d := &recordingDispatcher{}
	a := &memArchive{}
	s := New(testConfig(), "", d, WithArchiver(a))

	rec := post(s.Routes(), joinPayload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(d.updates) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(d.updates))
	}
	u := d.updates[0]
	if u.ID != 77 || u.Kind != telegram.KindJoinRequest {
		t.Errorf("update = {%d %v}, want {77 join_request}", u.ID, u.Kind)
	}
	if d.ctxErr != nil {
		t.Errorf("dispatch ctx error = %v, want nil", d.ctxErr)
	}
	if len(a.payloads) != 1 || a.payloads[0] != joinPayload || a.ids[0] != 77 {
		t.Errorf("archived = %v %v, want the raw body under 77", a.ids, a.payloads)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	d := &recordingDispatcher{}
	a := &memArchive{}
	s := New(testConfig(), "", d, WithArchiver(a))

	rec := post(s.Routes(), "{not json", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(d.updates) != 0 || len(a.ids) != 0 {
		t.Errorf("dispatched = %d, archived = %d, want 0, 0", len(d.updates), len(a.ids))
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(testConfig(), "", d)

	body := `{"update_id":1,"message":{"text":"` + strings.Repeat("a", maxBodySize) + `"}}`
	rec := post(s.Routes(), body, "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if len(d.updates) != 0 {
		t.Errorf("dispatched = %d, want 0", len(d.updates))
	}
}

func TestWebhookArchiveFailureStillDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(testConfig(), "", d, WithArchiver(&memArchive{err: errors.New("nats down")}))

	rec := post(s.Routes(), joinPayload, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(d.updates) != 1 {
		t.Errorf("dispatched = %d, want 1", len(d.updates))
	}
}

func TestWebhookDeduplicates(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(testConfig(), "", d, WithDeduplicator(&memDedup{seen: map[int64]bool{}}))
	h := s.Routes()

	for i := 0; i < 3; i++ {
		if rec := post(h, joinPayload, ""); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d, want %d", i, rec.Code, http.StatusOK)
		}
	}
	if len(d.updates) != 1 {
		t.Errorf("dispatched = %d, want 1", len(d.updates))
	}
}

func TestWebhookDedupFailureDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(testConfig(), "", d, WithDeduplicator(&memDedup{err: errors.New("redis down")}))

	post(s.Routes(), joinPayload, "")
	if len(d.updates) != 1 {
		t.Errorf("dispatched = %d, want 1", len(d.updates))
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	s := New(testConfig(), "", &recordingDispatcher{})
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
