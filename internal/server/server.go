package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gatekeeper-bot/internal/config"
	"gatekeeper-bot/internal/telegram"
	"gatekeeper-bot/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodySize  = 1 << 20
)

type Dispatcher interface {
	Dispatch(ctx context.Context, u *telegram.Update)
}

type Archiver interface {
	Archive(ctx context.Context, updateID int64, payload []byte) error
}

type Deduplicator interface {
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
}

type Server struct {
	cfg        config.HTTPConfig
	secret     string
	dispatcher Dispatcher
	archiver   Archiver
	dedup      Deduplicator
	http       *http.Server
}

type Option func(*Server)

func WithArchiver(a Archiver) Option {
	return func(s *Server) { s.archiver = a }
}

func WithDeduplicator(d Deduplicator) Option {
	return func(s *Server) { s.dedup = d }
}

func New(cfg config.HTTPConfig, secret string, d Dispatcher, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		secret:     secret,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(s.cfg.HealthEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Post(s.cfg.WebhookPath, s.handleWebhook)

	return r
}

func (s *Server) Start() error {
	logger.Info("HTTP server starting",
		logger.Int("port", s.cfg.Port),
		logger.String("webhook_path", s.cfg.WebhookPath),
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		logger.Warn("Webhook secret mismatch", logger.String("remote_addr", r.RemoteAddr))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("Webhook body too large", logger.Int64("limit", tooLarge.Limit))
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		logger.Warn("Failed to read webhook body", logger.Err(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	update, err := telegram.Decode(body)
	if err != nil {
		logger.Warn("Malformed update ignored", logger.Err(err), logger.Int("size", len(body)))
		w.WriteHeader(http.StatusOK)
		return
	}

	// Telegram may drop the connection early, the work must still finish.
	ctx := context.WithoutCancel(r.Context())

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, update.ID, body); err != nil {
			logger.Error("Failed to archive update", logger.Int64("update_id", update.ID), logger.Err(err))
		}
	}

	if s.dedup != nil {
		first, err := s.dedup.FirstSeen(ctx, update.ID)
		if err != nil {
			logger.Error("Failed to check update id", logger.Int64("update_id", update.ID), logger.Err(err))
		} else if !first {
			logger.Info("Duplicate update skipped", logger.Int64("update_id", update.ID))
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	s.dispatcher.Dispatch(ctx, update)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
