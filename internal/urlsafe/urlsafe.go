package urlsafe

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// HiddenParams replaces the query string of a masked URL.
	HiddenParams = "[PARAMS_HIDDEN]"
	// InvalidURL is returned by Mask for input that does not parse.
	InvalidURL = "[INVALID_URL]"
)

// Validate reports whether raw is a non-empty absolute http(s) URL with a host.
func Validate(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	return u.Host != "" && u.Hostname() != ""
}

// Mask returns scheme, host, port and path of raw with any query string
// replaced by HiddenParams. User info and fragments are dropped.
func Mask(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return InvalidURL
	}
	out := u.Scheme + "://" + u.Host + u.EscapedPath()
	if u.RawQuery != "" || u.ForceQuery {
		out += "?" + HiddenParams
	}
	return out
}

// MaskAll masks every URL in urls, preserving order.
func MaskAll(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		out = append(out, Mask(raw))
	}
	return out
}

// StripError unwraps *url.Error, whose message embeds the full request URL
// including query credentials. Other errors are returned unchanged.
func StripError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
