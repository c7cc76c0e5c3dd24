package offload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/media/mediatest"
	"github.com/JakeFAU/pinfetch/internal/metrics"
)

const testVideo = "https://v.pinimg.com/videos/a.mp4"

func postSend(t *testing.T, h http.Handler, key string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sendForm() url.Values {
	return url.Values{"url": {testVideo}, "chat_id": {"42"}}
}

func TestServerIndex(t *testing.T) {
	metrics.Init()

	srv := NewServer(ServerConfig{}, mediatest.NewFetcher(), mediatest.NewChannel(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "True", rec.Body.String())
}

func TestServerSendUploadsBytes(t *testing.T) {
	metrics.Init()

	fetcher := mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Body: []byte("mp4-bytes")})
	channel := mediatest.NewChannel()
	srv := NewServer(ServerConfig{APIKey: "secret"}, fetcher, channel, nil)

	rec := postSend(t, srv.Handler(), "secret", sendForm())
	require.Equal(t, http.StatusOK, rec.Code)

	calls := channel.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "SendVideoBytes", calls[0].Method)
	require.Equal(t, int64(42), calls[0].ChatID)
	require.Equal(t, []byte("mp4-bytes"), calls[0].Data)
}

func TestServerSendTooLarge(t *testing.T) {
	metrics.Init()

	fetcher := mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Body: []byte("huge")})
	channel := mediatest.NewChannel().FailOn("SendVideoBytes", media.ErrDeliveryRejected)
	srv := NewServer(ServerConfig{}, fetcher, channel, nil)

	rec := postSend(t, srv.Handler(), "", sendForm())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, []string{"SendVideoBytes", "SendMessage"}, channel.Methods())
	require.Contains(t, channel.Messages()[0], testVideo)
	require.Equal(t, media.FormatMarkdown, channel.Calls()[1].Format)
}

func TestServerSendFailures(t *testing.T) {
	metrics.Init()

	tests := []struct {
		name    string
		fetcher *mediatest.Fetcher
		channel *mediatest.Channel
	}{
		{
			name:    "download fails",
			fetcher: mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Err: errors.New("reset")}),
			channel: mediatest.NewChannel(),
		},
		{
			name:    "upload transport error",
			fetcher: mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Body: []byte("v")}),
			channel: mediatest.NewChannel().FailOn("SendVideoBytes", errors.New("timeout")),
		},
		{
			name:    "notice fails",
			fetcher: mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Body: []byte("v")}),
			channel: mediatest.NewChannel().
				FailOn("SendVideoBytes", media.ErrDeliveryRejected).
				FailOn("SendMessage", errors.New("down")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(ServerConfig{}, tt.fetcher, tt.channel, nil)
			rec := postSend(t, srv.Handler(), "", sendForm())
			require.Equal(t, http.StatusNotImplemented, rec.Code)
			require.Equal(t, "False", rec.Body.String())
		})
	}
}

func TestServerSendRejectsBadInput(t *testing.T) {
	metrics.Init()

	channel := mediatest.NewChannel()
	srv := NewServer(ServerConfig{APIKey: "secret"}, mediatest.NewFetcher(), channel, nil)

	rec := postSend(t, srv.Handler(), "wrong", sendForm())
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = postSend(t, srv.Handler(), "secret", url.Values{"url": {testVideo}, "chat_id": {"abc"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSend(t, srv.Handler(), "secret", url.Values{"chat_id": {"1"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Empty(t, channel.Calls())
}

func TestClientAgainstServer(t *testing.T) {
	metrics.Init()

	fetcher := mediatest.NewFetcher().Serve(testVideo, mediatest.Page{Body: []byte("v")})
	channel := mediatest.NewChannel()
	worker := httptest.NewServer(NewServer(ServerConfig{APIKey: "k"}, fetcher, channel, nil).Handler())
	defer worker.Close()

	code, err := NewClient(ClientConfig{URL: worker.URL + "/send", APIKey: "k"}, nil).
		Offload(context.Background(), testVideo, 42)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{"SendVideoBytes"}, channel.Methods())
}
