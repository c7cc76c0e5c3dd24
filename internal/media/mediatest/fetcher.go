package mediatest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// Page is a canned fetch result.
type Page struct {
	// FinalURL defaults to the requested URL.
	FinalURL string
	Status   int
	Body     []byte
	Err      error
}

// Fetcher serves canned pages by URL and records every request.
type Fetcher struct {
	mu    sync.Mutex
	pages map[string]Page
	urls  []string
}

var _ media.Fetcher = (*Fetcher)(nil)

// NewFetcher returns an empty Fetcher; unknown URLs fail.
func NewFetcher() *Fetcher {
	return &Fetcher{pages: map[string]Page{}}
}

// Serve registers a page for url.
func (f *Fetcher) Serve(url string, page Page) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = page
	return f
}

// URLs returns the requested URLs in order.
func (f *Fetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// Fetch implements media.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, req media.FetchRequest) (media.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, req.URL)

	page, ok := f.pages[req.URL]
	if !ok {
		return media.FetchResponse{}, fmt.Errorf("no route for %s", req.URL)
	}
	if page.Err != nil {
		return media.FetchResponse{}, page.Err
	}
	resp := media.FetchResponse{
		URL:        page.FinalURL,
		StatusCode: page.Status,
		Headers:    http.Header{},
		Body:       page.Body,
	}
	if resp.URL == "" {
		resp.URL = req.URL
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	return resp, nil
}
