package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for anything that is not an absolute http(s) URL with a host.
var ErrInvalidURL = errors.New("url must be an absolute http or https url")

// Parse validates rawURL as a probe target and returns the parsed form.
// Surrounding whitespace is rejected, not trimmed.
func Parse(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.TrimSpace(rawURL) != rawURL {
		return nil, fmt.Errorf("%w: surrounding whitespace", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !u.IsAbs() || (scheme != "http" && scheme != "https") {
		return nil, ErrInvalidURL
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Validate reports whether rawURL can be probed.
func Validate(rawURL string) error {
	_, err := Parse(rawURL)
	return err
}

// Canonicalize returns the normalized form of rawURL: lowercase scheme and
// host, default ports stripped, fragment dropped, and no trailing slash
// except on the root path.
func Canonicalize(rawURL string) (string, error) {
	u, err := Parse(rawURL)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		// keeps the brackets of an IPv6 literal
		u.Host = strings.TrimSuffix(u.Host, ":"+u.Port())
	}
	u.Fragment = ""
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}
