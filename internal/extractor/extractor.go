// Package extractor parses a provider pin page into a media descriptor.
//
// The page embeds a JSON blob mirroring the provider's API state. Lookups into
// that blob are soft: any missing level yields an empty value and the next
// fallback is tried. Only a page with no recognizable blob is a hard failure.
package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// Extractor applies the marker list and the fallback chains.
type Extractor struct {
	markers []Marker
}

// New builds an Extractor. With no markers, DefaultMarkers are used.
func New(markers ...Marker) *Extractor {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return &Extractor{markers: markers}
}

// Extract returns the resolved descriptor and the page's og:image, which is
// captured independently so callers always have an image candidate.
func (e *Extractor) Extract(page []byte) (media.Descriptor, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return media.Descriptor{}, "", fmt.Errorf("%w: parse html: %w", media.ErrMalformedPage, err)
	}
	fallbackImage := strings.TrimSpace(doc.Find(fallbackImageCSS).First().AttrOr("content", ""))

	state, ok := e.state(doc)
	if !ok {
		return media.Descriptor{}, fallbackImage, fmt.Errorf("%w: no embedded state", media.ErrMalformedPage)
	}

	pin := firstPin(state)
	desc := media.Descriptor{ImageURL: pin.Get(imagePath).String()}
	desc.VideoURL, desc.VideoDurationMS = video(pin)
	if desc.ImageURL == "" {
		desc.ImageURL = fallbackImage
	}
	if !desc.Valid() {
		return media.Descriptor{}, fallbackImage, fmt.Errorf("%w: no image or video", media.ErrMalformedPage)
	}
	return desc, fallbackImage, nil
}

// HasMarker reports whether any known state marker is present in the page.
func (e *Extractor) HasMarker(page []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return false
	}
	_, ok := e.state(doc)
	return ok
}

func (e *Extractor) state(doc *goquery.Document) (gjson.Result, bool) {
	for _, m := range e.markers {
		blob := strings.TrimSpace(doc.Find(m.Selector).First().Text())
		if blob == "" || !gjson.Valid(blob) {
			continue
		}
		state := gjson.Parse(blob)
		if m.StatePath != "" {
			state = state.Get(m.StatePath)
		}
		if state.IsObject() {
			return state, true
		}
	}
	return gjson.Result{}, false
}

// firstPin returns the first entry of the state's pins map.
func firstPin(state gjson.Result) gjson.Result {
	var pin gjson.Result
	state.Get("pins").ForEach(func(_, value gjson.Result) bool {
		pin = value
		return false
	})
	return pin
}

func video(pin gjson.Result) (string, int64) {
	for _, src := range videoSources {
		entry := pin.Get(src.path)
		if u := entry.Get("url").String(); u != "" {
			return u, entry.Get("duration").Int()
		}
	}
	return "", 0
}
