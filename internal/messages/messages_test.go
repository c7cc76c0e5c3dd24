package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTexts(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Invalid url - https://x.test/a.\nPlease check the url and retry.", InvalidURL("https://x.test/a"))
	require.Equal(t,
		"Not a Pinterest url - https://x.test/a.\nPlease try with a Pinterest image or video URL.",
		NotProvider("https://x.test/a"))
	require.Contains(t, Internal("https://pin.it/a", ""), DefaultSupportChannelURL)
	require.Contains(t, Internal("https://pin.it/a", "https://t.me/other"), "(https://t.me/other)")
	require.Contains(t, TooLarge("https://v.pinimg.com/a.mp4"), "[here](https://v.pinimg.com/a.mp4)")
}

func TestInternalEscapesMarkdownInURL(t *testing.T) {
	t.Parallel()

	text := Internal("https://pin.it/a?utm_source=x*y", "")
	require.Contains(t, text, `https://pin.it/a?utm\_source=x\*y`)
	require.NotContains(t, text, "utm_source")
}
