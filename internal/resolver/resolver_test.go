package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
)

const apiBase = "https://api.pinterest.com"

func newTestResolver(f media.Fetcher) *Resolver {
	return New(f, Config{
		ProviderLabel: "pinterest",
		APIBase:       apiBase + "/",
		Headers:       http.Header{"User-Agent": {"browser"}},
	}, zap.NewNop())
}

func TestResolveRedirectToPin(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.routes["https://pin.it/abc123"] = media.FetchResponse{
		URL:        "https://www.pinterest.com/pin/1234/sent/?invite_code=q",
		StatusCode: http.StatusOK,
	}

	got, err := newTestResolver(f).Resolve(context.Background(), "https://pin.it/abc123")
	require.NoError(t, err)
	require.Equal(t, "https://www.pinterest.com/pin/1234", got)
	require.Equal(t, []string{"https://pin.it/abc123"}, f.visited())
	require.Equal(t, "browser", f.lastHeaders.Get("User-Agent"))
}

func TestResolveFallsBackToShortlinkAPI(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.routes["https://pin.it/abc123"] = media.FetchResponse{
		URL:        "https://www.pinterest.com/",
		StatusCode: http.StatusOK,
	}
	f.routes[apiBase+"/url_shortener/abc123/redirect/"] = media.FetchResponse{
		URL:        "https://www.pinterest.com/pin/5678/sent/?x=1",
		StatusCode: http.StatusOK,
	}

	got, err := newTestResolver(f).Resolve(context.Background(), "https://pin.it/abc123")
	require.NoError(t, err)
	require.Equal(t, "https://www.pinterest.com/pin/5678", got)
	require.Equal(t, []string{
		"https://pin.it/abc123",
		apiBase + "/url_shortener/abc123/redirect/",
	}, f.visited())
}

func TestResolveShortlinkAPIStillNoPin(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.routes["https://pin.it/abc123"] = media.FetchResponse{URL: "https://www.pinterest.com/", StatusCode: http.StatusOK}
	f.routes[apiBase+"/url_shortener/abc123/redirect/"] = media.FetchResponse{
		URL:        "https://www.pinterest.com/ideas/",
		StatusCode: http.StatusOK,
	}

	_, err := newTestResolver(f).Resolve(context.Background(), "https://pin.it/abc123")
	require.ErrorIs(t, err, media.ErrInvalidURL)
}

func TestResolveNonProviderDomain(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.routes["https://bit.ly/zzz"] = media.FetchResponse{
		URL:        "https://www.example.com/pin/1",
		StatusCode: http.StatusOK,
	}

	_, err := newTestResolver(f).Resolve(context.Background(), "https://bit.ly/zzz")
	require.ErrorIs(t, err, media.ErrInvalidProviderURL)
	require.False(t, errors.Is(err, media.ErrInvalidURL))
	require.Len(t, f.visited(), 1)
}

func TestResolveNetworkFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	_, err := newTestResolver(f).Resolve(context.Background(), "https://pin.it/unknown")
	require.ErrorIs(t, err, media.ErrInvalidURL)
}

func TestResolveNon2xx(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.routes["https://www.pinterest.com/pin/1"] = media.FetchResponse{
		URL:        "https://www.pinterest.com/pin/1",
		StatusCode: http.StatusNotFound,
	}
	_, err := newTestResolver(f).Resolve(context.Background(), "https://www.pinterest.com/pin/1")
	require.ErrorIs(t, err, media.ErrInvalidURL)
}

func TestResolveRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	for _, raw := range []string{"ftp://pinterest.com/pin/1", "https://", "::"} {
		_, err := newTestResolver(f).Resolve(context.Background(), raw)
		require.ErrorIs(t, err, media.ErrInvalidURL, raw)
	}
	require.Empty(t, f.visited())
}

type fakeFetcher struct {
	mu          sync.Mutex
	routes      map[string]media.FetchResponse
	calls       []string
	lastHeaders http.Header
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{routes: map[string]media.FetchResponse{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, req media.FetchRequest) (media.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	f.lastHeaders = req.Headers
	resp, ok := f.routes[req.URL]
	if !ok {
		return media.FetchResponse{}, errors.New("dial tcp: no such host")
	}
	return resp, nil
}

func (f *fakeFetcher) visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
