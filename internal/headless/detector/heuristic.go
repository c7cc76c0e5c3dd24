// Package detector decides when a page fetch should be repeated in a headless
// browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// MarkerChecker reports whether a page carries a state blob the extractor knows.
type MarkerChecker interface {
	HasMarker(page []byte) bool
}

// appShellMarkers show up in client-rendered shells that fill in state later.
var appShellMarkers = [][]byte{
	[]byte(`id="__PWS_ROOT__"`),
	[]byte(`id="__next"`),
	[]byte(`data-reactroot`),
	[]byte(`id="app"`),
}

// StateMarker promotes successful responses that lack any known state blob.
type StateMarker struct {
	checker MarkerChecker
}

// NewStateMarker creates a detector backed by checker.
func NewStateMarker(checker MarkerChecker) *StateMarker {
	return &StateMarker{checker: checker}
}

// ShouldPromote decides whether a headless fetch is required.
func (d *StateMarker) ShouldPromote(resp media.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	if d.checker != nil && d.checker.HasMarker(resp.Body) {
		return false
	}
	return true
}

// AppShell reports whether the body looks like an unrendered client shell.
// The pipeline logs it as the promotion reason.
func AppShell(body []byte) bool {
	for _, marker := range appShellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}
