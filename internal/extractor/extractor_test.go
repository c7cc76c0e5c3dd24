package extractor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pinfetch/internal/media"
)

func loadPage(t *testing.T, filename string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + filename)
	if err != nil {
		t.Fatalf("reading test fixture %s: %v", filename, err)
	}
	return data
}

func TestExtractPrimaryImage(t *testing.T) {
	t.Parallel()

	desc, fallback, err := New().Extract(loadPage(t, "pin_image.html"))
	require.NoError(t, err)
	require.Equal(t, "https://i.pinimg.com/originals/aa/bb/orig.jpg", desc.ImageURL)
	require.Empty(t, desc.VideoURL)
	require.Zero(t, desc.VideoDurationMS)
	require.Equal(t, "https://i.pinimg.com/736x/aa/bb/og.jpg", fallback)
}

func TestExtractPrimaryVideoWinsOverStory(t *testing.T) {
	t.Parallel()

	desc, fallback, err := New().Extract(loadPage(t, "pin_video.html"))
	require.NoError(t, err)
	require.Equal(t, "https://v.pinimg.com/videos/mc/720p/primary.mp4", desc.VideoURL)
	require.Equal(t, int64(15400), desc.VideoDurationMS)
	require.Equal(t, "https://i.pinimg.com/originals/cc/dd/cover.jpg", desc.ImageURL)
	require.Equal(t, "https://i.pinimg.com/736x/cc/dd/og.jpg", fallback)
}

func TestExtractStoryVideoFallback(t *testing.T) {
	t.Parallel()

	desc, _, err := New().Extract(loadPage(t, "story_video.html"))
	require.NoError(t, err)
	require.Equal(t, "https://v.pinimg.com/videos/story.mp4", desc.VideoURL)
	require.Equal(t, int64(61000), desc.VideoDurationMS)
	require.Equal(t, "https://i.pinimg.com/736x/ee/ff/og.jpg", desc.ImageURL)
}

func TestExtractFallbackImageOnly(t *testing.T) {
	t.Parallel()

	desc, fallback, err := New().Extract(loadPage(t, "fallback_only.html"))
	require.NoError(t, err)
	require.Equal(t, media.Descriptor{ImageURL: "https://i.pinimg.com/736x/11/22/fallback.jpg"}, desc)
	require.Equal(t, desc.ImageURL, fallback)
}

func TestExtractLegacyMarker(t *testing.T) {
	t.Parallel()

	desc, _, err := New().Extract(loadPage(t, "legacy_initial_state.html"))
	require.NoError(t, err)
	require.Equal(t, "https://i.pinimg.com/originals/33/44/anim.gif", desc.ImageURL)
	require.True(t, desc.IsAnimatedImage())
}

func TestExtractMalformedPage(t *testing.T) {
	t.Parallel()

	_, fallback, err := New().Extract(loadPage(t, "no_state.html"))
	require.ErrorIs(t, err, media.ErrMalformedPage)
	require.Equal(t, "https://i.pinimg.com/736x/55/66/og.jpg", fallback)

	_, _, err = New().Extract([]byte("<html><body>plain</body></html>"))
	require.ErrorIs(t, err, media.ErrMalformedPage)
}

func TestExtractNoAssets(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head><script id="__PWS_DATA__">{"props":{"initialReduxState":{"pins":{"1":{}}}}}</script></head></html>`)
	_, _, err := New().Extract(page)
	require.ErrorIs(t, err, media.ErrMalformedPage)
}

func TestExtractCustomMarkerOrder(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head>
<script id="__PWS_DATA__">{"props":{"initialReduxState":{"pins":{"1":{"images":{"orig":{"url":"https://new/x.jpg"}}}}}}}</script>
<script id="initial-state">{"pins":{"1":{"images":{"orig":{"url":"https://old/x.jpg"}}}}}</script>
</head></html>`)

	desc, _, err := New(Marker{Name: "legacy", Selector: "script#initial-state"}).Extract(page)
	require.NoError(t, err)
	require.Equal(t, "https://old/x.jpg", desc.ImageURL)

	desc, _, err = New().Extract(page)
	require.NoError(t, err)
	require.Equal(t, "https://new/x.jpg", desc.ImageURL)
}

func TestHasMarker(t *testing.T) {
	t.Parallel()

	ex := New()
	require.True(t, ex.HasMarker(loadPage(t, "pin_image.html")))
	require.True(t, ex.HasMarker(loadPage(t, "legacy_initial_state.html")))
	require.False(t, ex.HasMarker(loadPage(t, "no_state.html")))
	require.False(t, ex.HasMarker(nil))
}
