// Package cache holds the wire format shared by the resolution cache stores.
// Entries are keyed by the source URL exactly as extracted from user text, and
// values are small JSON objects naming the resolved assets.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// ErrCorrupt means a stored value could not be decoded.
var ErrCorrupt = errors.New("corrupt cache entry")

// Encode serializes a descriptor for storage.
func Encode(d media.Descriptor) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("encode descriptor: no image or video")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return data, nil
}

// Decode parses a stored value. Empty objects count as corrupt since a
// descriptor without assets is never written.
func Decode(data []byte) (media.Descriptor, error) {
	var d media.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return media.Descriptor{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !d.Valid() {
		return media.Descriptor{}, ErrCorrupt
	}
	return d, nil
}
