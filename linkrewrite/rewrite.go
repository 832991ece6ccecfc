// Package linkrewrite swaps the hostname of a post URL for a target host.
package linkrewrite

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidURL      = errors.New("linkrewrite: invalid url")
	ErrInvalidHostname = errors.New("linkrewrite: invalid hostname")
)

var hostnameRe = regexp.MustCompile(`^(?i:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)(?:\.(?i:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?))*$`)

// ValidHostname reports whether h is a bare DNS hostname (no scheme, port
// or path).
func ValidHostname(h string) bool {
	return len(h) > 0 && len(h) <= 253 && hostnameRe.MatchString(h)
}

// TransformURL returns original with its hostname replaced by target.
// Scheme, userinfo, port, path, query and fragment are kept byte for byte.
func TransformURL(original, target string) (string, error) {
	if !ValidHostname(target) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHostname, target)
	}
	u, err := url.Parse(original)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, original)
	}

	start, end, ok := hostSpan(original)
	if !ok {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidURL, original)
	}
	return original[:start] + target + original[end:], nil
}

// hostSpan locates the hostname inside the authority of raw, excluding
// userinfo and port.
func hostSpan(raw string) (start, end int, ok bool) {
	i := strings.Index(raw, "://")
	if i < 0 {
		return 0, 0, false
	}
	authStart := i + 3
	authEnd := len(raw)
	if j := strings.IndexAny(raw[authStart:], "/?#"); j >= 0 {
		authEnd = authStart + j
	}
	start = authStart
	if at := strings.LastIndex(raw[authStart:authEnd], "@"); at >= 0 {
		start = authStart + at + 1
	}
	end = authEnd
	if strings.HasPrefix(raw[start:authEnd], "[") {
		close := strings.Index(raw[start:authEnd], "]")
		if close < 0 {
			return 0, 0, false
		}
		end = start + close + 1
	} else if colon := strings.LastIndex(raw[start:authEnd], ":"); colon >= 0 {
		end = start + colon
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}
