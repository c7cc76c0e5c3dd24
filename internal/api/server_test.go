package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/media/mediatest"
	"github.com/JakeFAU/pinfetch/internal/messages"
	"github.com/JakeFAU/pinfetch/internal/metrics"
	"github.com/JakeFAU/pinfetch/internal/pipeline"
	"github.com/JakeFAU/pinfetch/internal/policy"
)

const token = "123:secret"

type fakeHandler struct {
	mu   sync.Mutex
	reqs []media.Request
}

func (f *fakeHandler) Handle(_ context.Context, req media.Request) pipeline.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return pipeline.Result{Outcome: media.Outcome{Kind: media.OutcomeImage}}
}

func (f *fakeHandler) requests() []media.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Request(nil), f.reqs...)
}

type fakeRegistrar struct {
	url string
	err error
}

func (f *fakeRegistrar) RegisterWebhook(url string) error {
	f.url = url
	return f.err
}

type fakeIDGen struct {
	id  string
	err error
}

func (f fakeIDGen) NewID() (string, error) { return f.id, f.err }

type rejectAll struct{ err error }

func (r rejectAll) Admit(context.Context, int64) error { return r.err }

func newTestServer(h Handler, adm Admitter, ch media.Channel, reg WebhookRegistrar) *Server {
	metrics.Init()
	return NewServer(Config{
		Token:      token,
		WebhookURL: "https://bot.example.test/",
	}, h, adm, ch, reg, fakeIDGen{id: "req-7"}, zap.NewNop())
}

func postUpdate(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const textUpdate = `{"update_id":1,"message":{"message_id":5,"chat":{"id":42,"type":"private"},"text":"  look https://pin.it/abc  "}}`

func TestWebhookRunsPipeline(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	s := newTestServer(h, policy.NewAdmission(nil, nil), mediatest.NewChannel(), nil)

	rec := postUpdate(t, s, "/"+token, textUpdate)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "!", rec.Body.String())
	require.Equal(t, []media.Request{{RequestID: "req-7", ChatID: 42, Text: "look https://pin.it/abc"}}, h.requests())
}

func TestWebhookWrongToken(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	s := newTestServer(h, nil, mediatest.NewChannel(), nil)

	rec := postUpdate(t, s, "/999:other", textUpdate)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, h.requests())
}

func TestWebhookIgnoresNonTextUpdates(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	s := newTestServer(h, nil, mediatest.NewChannel(), nil)

	for _, body := range []string{
		`{"update_id":2,"callback_query":{"id":"x"}}`,
		`{"update_id":3,"message":{"message_id":1,"chat":{"id":42,"type":"private"}}}`,
		`not json`,
	} {
		rec := postUpdate(t, s, "/"+token, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		require.Equal(t, "!", rec.Body.String(), body)
	}
	require.Empty(t, h.requests())
}

func TestWebhookBlockedChat(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	ch := mediatest.NewChannel()
	s := newTestServer(h, policy.NewAdmission([]int64{42}, nil), ch, nil)

	rec := postUpdate(t, s, "/"+token, textUpdate)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, h.requests())
	require.Equal(t, []string{messages.Blocked}, ch.Messages())
}

func TestWebhookThrottledChatIsDropped(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{}
	ch := mediatest.NewChannel()
	s := newTestServer(h, rejectAll{err: policy.ErrThrottled}, ch, nil)

	rec := postUpdate(t, s, "/"+token, textUpdate)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, h.requests())
	require.Empty(t, ch.Calls())
}

func TestWebhookFallsBackToHTTPRequestID(t *testing.T) {
	t.Parallel()

	metrics.Init()
	h := &fakeHandler{}
	s := NewServer(Config{Token: token}, h, nil, mediatest.NewChannel(), nil,
		fakeIDGen{err: errors.New("entropy")}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/"+token, strings.NewReader(textUpdate))
	req.Header.Set("X-Request-ID", "http-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http-id", rec.Header().Get("X-Request-ID"))
	require.Equal(t, "http-id", h.requests()[0].RequestID)
}

// slowHandler blocks until its context ends or delay passes and records the
// context error it saw.
type slowHandler struct {
	delay time.Duration
	errs  chan error
}

func (h slowHandler) Handle(ctx context.Context, _ media.Request) pipeline.Result {
	select {
	case <-ctx.Done():
	case <-time.After(h.delay):
	}
	h.errs <- ctx.Err()
	return pipeline.Result{Outcome: media.Failed(ctx.Err())}
}

func TestWebhookAcknowledgesRunsPastRequestTimeout(t *testing.T) {
	t.Parallel()

	metrics.Init()
	h := slowHandler{delay: 300 * time.Millisecond, errs: make(chan error, 1)}
	s := NewServer(Config{Token: token, RequestTimeout: 120 * time.Millisecond},
		h, nil, mediatest.NewChannel(), nil, fakeIDGen{id: "req-9"}, zap.NewNop())

	rec := postUpdate(t, s, "/"+token, textUpdate)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "!", rec.Body.String())
	require.ErrorIs(t, <-h.errs, context.DeadlineExceeded)
}

func TestWebhookRunSurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	metrics.Init()
	h := slowHandler{delay: 10 * time.Millisecond, errs: make(chan error, 1)}
	s := NewServer(Config{Token: token, RequestTimeout: time.Second},
		h, nil, mediatest.NewChannel(), nil, fakeIDGen{id: "req-10"}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/"+token, strings.NewReader(textUpdate)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, <-h.errs)
}

func TestRegisterWebhook(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistrar{}
	s := newTestServer(&fakeHandler{}, nil, mediatest.NewChannel(), reg)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "webhook setup ok", rec.Body.String())
	require.Equal(t, "https://bot.example.test/"+token, reg.url)
}

func TestRegisterWebhookFailure(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistrar{err: errors.New("bad token")}
	s := newTestServer(&fakeHandler{}, nil, mediatest.NewChannel(), reg)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	s = newTestServer(&fakeHandler{}, nil, mediatest.NewChannel(), nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeHandler{}, nil, mediatest.NewChannel(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	h := APIKeyMiddleware("secret")(next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	APIKeyMiddleware("")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := RecoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}
