package media

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PromotionDetector decides whether a headless fetch is warranted.
type PromotionDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// Cache stores resolved descriptors keyed by source URL.
type Cache interface {
	Get(ctx context.Context, key SourceURL) (Descriptor, bool, error)
	Put(ctx context.Context, key SourceURL, d Descriptor, ttl time.Duration) error
}

// Channel is the outbound messaging channel.
type Channel interface {
	SendDocumentURL(ctx context.Context, chatID int64, url string) error
	SendPhotoURL(ctx context.Context, chatID int64, url string) error
	SendPhotoBytes(ctx context.Context, chatID int64, name string, data []byte) error
	SendVideoURL(ctx context.Context, chatID int64, url string) error
	SendVideoBytes(ctx context.Context, chatID int64, name string, data []byte) error
	SendMessage(ctx context.Context, chatID int64, text string, format TextFormat) error
	SendAction(ctx context.Context, chatID int64, action string) error
}

// Offloader hands an oversized video to the secondary worker and returns its
// HTTP status code.
type Offloader interface {
	Offload(ctx context.Context, videoURL string, chatID int64) (int, error)
}

// Publisher pushes outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
