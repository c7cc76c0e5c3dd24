package offload

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/api"
	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/messages"
	"github.com/JakeFAU/pinfetch/internal/metrics"
)

const videoFileName = "video.mp4"

// ServerConfig configures the worker.
type ServerConfig struct {
	APIKey string
	// Timeout bounds one /send request, download and upload included.
	Timeout time.Duration
}

// Server is the offload worker: it downloads the video itself and uploads
// the bytes, falling back to a direct-link notice.
type Server struct {
	handler http.Handler
	fetcher media.Fetcher
	channel media.Channel
	logger  *zap.Logger
}

// NewServer wires routes and middleware.
func NewServer(cfg ServerConfig, fetcher media.Fetcher, channel media.Channel, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	s := &Server{
		fetcher: fetcher,
		channel: channel,
		logger:  logger.Named("offload_worker"),
	}

	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware)
	r.Use(api.LoggingMiddleware(s.logger))
	r.Use(api.RecoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Get("/", s.index)
	r.Handle("/metrics", metrics.Handler())
	r.Group(func(r chi.Router) {
		r.Use(api.APIKeyMiddleware(cfg.APIKey))
		r.Use(api.TimeoutMiddleware(cfg.Timeout))
		r.Post("/send", s.send)
	})
	// Continues the trace started by the bot's offload client.
	s.handler = otelhttp.NewHandler(r, "offload_worker")
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	api.WriteText(w, http.StatusOK, "True")
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.WriteText(w, http.StatusBadRequest, "False")
		return
	}
	videoURL := r.PostForm.Get("url")
	chatID, err := strconv.ParseInt(r.PostForm.Get("chat_id"), 10, 64)
	if videoURL == "" || err != nil {
		api.WriteText(w, http.StatusBadRequest, "False")
		return
	}
	logger := s.logger.With(
		zap.String("request_id", api.RequestID(r.Context())),
		zap.Int64("chat_id", chatID),
		zap.String("url", videoURL),
	)
	ctx := r.Context()

	resp, err := s.fetcher.Fetch(ctx, media.FetchRequest{URL: videoURL})
	if err != nil {
		logger.Error("video download failed", zap.Error(err))
		api.WriteText(w, http.StatusNotImplemented, "False")
		return
	}

	err = s.channel.SendVideoBytes(ctx, chatID, videoFileName, resp.Body)
	switch {
	case err == nil:
		logger.Info("video uploaded", zap.Int("bytes", len(resp.Body)))
		api.WriteText(w, http.StatusOK, "True")
	case errors.Is(err, media.ErrDeliveryRejected):
		if noticeErr := s.channel.SendMessage(ctx, chatID, messages.TooLarge(videoURL), media.FormatMarkdown); noticeErr != nil {
			logger.Error("too-large notice failed", zap.Error(noticeErr))
			api.WriteText(w, http.StatusNotImplemented, "False")
			return
		}
		logger.Info("video too large, direct link sent", zap.Int("bytes", len(resp.Body)))
		api.WriteText(w, http.StatusCreated, "True")
	default:
		logger.Error("video upload failed", zap.Error(err))
		api.WriteText(w, http.StatusNotImplemented, "False")
	}
}
