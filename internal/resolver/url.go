package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/pinfetch/internal/media"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// trackingSuffix marks the share-tracking tail the provider appends to pin URLs.
const trackingSuffix = "/sent"

// ExtractURL returns the first http(s) URL in text, or media.ErrNotFound.
func ExtractURL(text string) (string, error) {
	match := urlPattern.FindString(text)
	if match == "" {
		return "", media.ErrNotFound
	}
	return match, nil
}

// StripTracking drops everything from the first "/sent" segment onwards.
func StripTracking(rawURL string) string {
	if i := strings.Index(rawURL, trackingSuffix); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// RegistrableLabel returns the label of the host's registrable domain, e.g.
// "pinterest" for "www.pinterest.co.uk".
func RegistrableLabel(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("registrable domain of %q: %w", host, err)
	}
	label, _, _ := strings.Cut(etld1, ".")
	return label, nil
}

// shortCode pulls the provider short code out of a shortlink.
func shortCode(rawURL string) string {
	if _, after, ok := strings.Cut(rawURL, "/pin.it/"); ok {
		code, _, _ := strings.Cut(after, "?")
		return strings.Trim(code, "/")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}

func validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", media.ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", media.ErrInvalidURL, rawURL)
	}
	return nil
}
