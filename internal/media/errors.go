package media

import "errors"

// Sentinel errors shared across the pipeline. Callers wrap them with %w and
// test with errors.Is.
var (
	// ErrNotFound means the text held no URL. It is a no-op path, not a failure.
	ErrNotFound = errors.New("no url found")
	// ErrInvalidURL covers unreachable, malformed, or non-2xx links.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidProviderURL means the link resolved to a host outside the provider.
	ErrInvalidProviderURL = errors.New("not a provider url")
	// ErrMalformedPage means the page carried no usable state blob.
	ErrMalformedPage = errors.New("malformed page")
	// ErrDeliveryRejected means the channel refused the asset.
	ErrDeliveryRejected = errors.New("delivery rejected")
	// ErrOffloadFailed means the offload worker reported failure.
	ErrOffloadFailed = errors.New("offload failed")
)
