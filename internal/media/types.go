package media

import (
	"net/http"
	"strings"
	"time"
)

// SourceURL is the link extracted from user text. It is the cache identity key.
type SourceURL string

// Descriptor is the resolved media for a SourceURL. Empty strings and a zero
// duration mean the field is absent.
type Descriptor struct {
	ImageURL        string `json:"image,omitempty"`
	VideoURL        string `json:"video,omitempty"`
	VideoDurationMS int64  `json:"duration_ms,omitempty"`
}

// Valid reports whether at least one deliverable asset is present.
func (d Descriptor) Valid() bool {
	return d.ImageURL != "" || d.VideoURL != ""
}

// HasVideo reports whether the descriptor carries a video URL.
func (d Descriptor) HasVideo() bool {
	return d.VideoURL != ""
}

// IsAnimatedImage reports whether the image URL points at a GIF.
func (d Descriptor) IsAnimatedImage() bool {
	u := d.ImageURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ".gif")
}

// OutcomeKind tags a delivery outcome.
type OutcomeKind string

// Delivery outcome kinds.
const (
	OutcomeImage          OutcomeKind = "image"
	OutcomeAnimatedImage  OutcomeKind = "animated_image"
	OutcomeVideo          OutcomeKind = "video"
	OutcomeVideoOffloaded OutcomeKind = "video_offloaded"
	OutcomeVideoTooLarge  OutcomeKind = "video_too_large"
	OutcomeFailed         OutcomeKind = "failed"
)

// Outcome is produced once per inbound request. Err is set only for OutcomeFailed.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Failed builds a failed outcome carrying the reason.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Succeeded reports whether the outcome ended with something delivered to the chat.
func (o Outcome) Succeeded() bool {
	return o.Kind != OutcomeFailed && o.Kind != ""
}

// Reason returns the failure text, or an empty string.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// TextFormat selects how the channel renders a text message.
type TextFormat int

// Text formats.
const (
	FormatPlain TextFormat = iota
	FormatMarkdown
)

// Request is the unit handed to the pipeline by the inbound glue.
type Request struct {
	RequestID string
	ChatID    int64
	Text      string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Event is the compact record emitted after each request.
type Event struct {
	RequestID string `json:"request_id"`
	ChatID    int64  `json:"chat_id"`
	SourceURL string `json:"source_url"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	CacheHit  bool   `json:"cache_hit"`
}
