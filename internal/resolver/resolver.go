// Package resolver turns user-supplied links into canonical provider pin URLs.
// It follows redirects, strips share tracking, checks the registrable domain,
// and falls back to the provider's shortlink API when a redirect does not land
// on a pin page.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
)

const pinSegment = "/pin/"

// Config controls provider matching and the shortlink endpoint.
type Config struct {
	// ProviderLabel is the registrable-domain label links must resolve to.
	ProviderLabel string
	// APIBase is the provider API root hosting the url_shortener endpoint.
	APIBase string
	Headers http.Header
}

// Resolver resolves raw links to canonical pin URLs.
type Resolver struct {
	fetcher media.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Resolver.
func New(fetcher media.Fetcher, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Resolver{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Resolve follows rawURL to its canonical pin page.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if err := validate(rawURL); err != nil {
		return "", err
	}
	final, err := r.follow(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := r.checkProvider(final); err != nil {
		return "", err
	}
	if hasPin(final) {
		return final, nil
	}

	code := shortCode(rawURL)
	if code == "" {
		return "", fmt.Errorf("%w: %s: no short code", media.ErrInvalidURL, rawURL)
	}
	r.logger.Debug("redirect missed pin page, trying shortlink api",
		zap.String("url", rawURL),
		zap.String("resolved", final),
		zap.String("short_code", code),
	)
	expanded, err := r.follow(ctx, r.shortlinkEndpoint(code))
	if err != nil {
		return "", err
	}
	if err := r.checkProvider(expanded); err != nil {
		return "", err
	}
	if !hasPin(expanded) {
		return "", fmt.Errorf("%w: %s: shortlink did not expand to a pin", media.ErrInvalidURL, rawURL)
	}
	return expanded, nil
}

func (r *Resolver) follow(ctx context.Context, target string) (string, error) {
	resp, err := r.fetcher.Fetch(ctx, media.FetchRequest{URL: target, Headers: r.cfg.Headers})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", media.ErrInvalidURL, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: status %d", media.ErrInvalidURL, target, resp.StatusCode)
	}
	final := resp.URL
	if final == "" {
		final = target
	}
	return StripTracking(final), nil
}

func (r *Resolver) checkProvider(resolved string) error {
	label, err := RegistrableLabel(resolved)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", media.ErrInvalidURL, resolved, err)
	}
	if label != r.cfg.ProviderLabel {
		return fmt.Errorf("%w: %s", media.ErrInvalidProviderURL, resolved)
	}
	return nil
}

func (r *Resolver) shortlinkEndpoint(code string) string {
	return fmt.Sprintf("%s/url_shortener/%s/redirect/", r.cfg.APIBase, url.PathEscape(code))
}

func hasPin(resolved string) bool {
	u, err := url.Parse(resolved)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, pinSegment)
}
