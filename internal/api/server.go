package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/logging"
	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/messages"
	"github.com/JakeFAU/pinfetch/internal/metrics"
	"github.com/JakeFAU/pinfetch/internal/pipeline"
	"github.com/JakeFAU/pinfetch/internal/policy"
)

// webhookAck is the body returned for every webhook delivery.
const webhookAck = "!"

// Handler runs one chat request through the pipeline.
type Handler interface {
	Handle(ctx context.Context, req media.Request) pipeline.Result
}

// Admitter gates chats before they reach the pipeline.
type Admitter interface {
	Admit(ctx context.Context, chatID int64) error
}

// WebhookRegistrar points the bot platform at this server.
type WebhookRegistrar interface {
	RegisterWebhook(url string) error
}

// Config configures the bot-facing server.
type Config struct {
	// Token is the bot token; it doubles as the secret webhook path segment.
	Token string
	// WebhookURL is the public base the token is appended to on registration.
	WebhookURL string
	// RequestTimeout bounds the pipeline run for one webhook delivery. The
	// acknowledgement is written whether or not the run finishes in time.
	RequestTimeout time.Duration
}

// Server wires the webhook route to admission and the pipeline.
type Server struct {
	router    chi.Router
	cfg       Config
	handler   Handler
	admission Admitter
	channel   media.Channel
	registrar WebhookRegistrar
	idGen     media.IDGenerator
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. admission and
// registrar may be nil.
func NewServer(
	cfg Config,
	handler Handler,
	admission Admitter,
	channel media.Channel,
	registrar WebhookRegistrar,
	idGen media.IDGenerator,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	s := &Server{
		cfg:       cfg,
		handler:   handler,
		admission: admission,
		channel:   channel,
		registrar: registrar,
		idGen:     idGen,
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/", s.registerWebhook)
	r.Post("/{token}", s.webhook)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// registerWebhook points the platform at {WebhookURL}{Token}.
func (s *Server) registerWebhook(w http.ResponseWriter, _ *http.Request) {
	if s.registrar == nil || s.cfg.WebhookURL == "" {
		writeError(w, http.StatusServiceUnavailable, "webhook registration not configured")
		return
	}
	target := s.cfg.WebhookURL + s.cfg.Token
	if err := s.registrar.RegisterWebhook(target); err != nil {
		s.logger.Error("webhook registration failed", zap.Error(err))
		WriteText(w, http.StatusBadGateway, "webhook setup failed")
		return
	}
	s.logger.Info("webhook registered")
	WriteText(w, http.StatusOK, "webhook setup ok")
}

// webhook always acknowledges a correctly addressed delivery, whatever the
// outcome, so the platform does not redeliver it.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token == "" || chi.URLParam(r, "token") != s.cfg.Token {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.logger.Warn("undecodable update", zap.Error(err))
		WriteText(w, http.StatusOK, webhookAck)
		return
	}
	req, ok := s.toRequest(r.Context(), update)
	if !ok {
		WriteText(w, http.StatusOK, webhookAck)
		return
	}
	// The run outlives a dropped connection so the chat still gets its reply.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RequestTimeout)
	defer cancel()
	s.process(ctx, req)
	WriteText(w, http.StatusOK, webhookAck)
}

func (s *Server) process(ctx context.Context, req media.Request) {
	logger := logging.ForRequest(s.logger, req)
	if s.admission != nil {
		err := s.admission.Admit(ctx, req.ChatID)
		switch {
		case errors.Is(err, policy.ErrBlocked):
			logger.Info("blocked chat")
			if sendErr := s.channel.SendMessage(ctx, req.ChatID, messages.Blocked, media.FormatPlain); sendErr != nil {
				logger.Warn("blocked reply failed", zap.Error(sendErr))
			}
			return
		case err != nil:
			logger.Warn("request dropped", zap.Error(err))
			return
		}
	}
	s.handler.Handle(ctx, req)
}

// toRequest pulls the chat and text out of an update. Updates without a text
// message are ignored.
func (s *Server) toRequest(ctx context.Context, update tgbotapi.Update) (media.Request, bool) {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return media.Request{}, false
	}
	return media.Request{
		RequestID: s.requestID(ctx),
		ChatID:    msg.Chat.ID,
		Text:      strings.TrimSpace(msg.Text),
	}, true
}

// requestID prefers a fresh time-ordered id and falls back to the HTTP
// request id.
func (s *Server) requestID(ctx context.Context) string {
	if s.idGen != nil {
		id, err := s.idGen.NewID()
		if err == nil {
			return id
		}
		s.logger.Warn("request id generation failed", zap.Error(err))
	}
	return RequestID(ctx)
}
