package urlutil

import (
	"crypto/md5"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyURL       = errors.New("url is empty")
	ErrUnsupportedURL = errors.New("only http and https urls are supported")
	ErrMissingHost    = errors.New("url is missing a host")
)

func NormalizeURL(urlStr string) string {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return urlStr
	}

	parsed.Fragment = ""
	if parsed.Path == "/" {
		parsed.Path = ""
	}

	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}

	return parsed.String()
}

func ComputeContentHash(content string) string {
	hash := md5.Sum([]byte(content))
	return fmt.Sprintf("%x", hash)
}

// Host returns the lowercased host[:port] part of rawURL, or "" when it
// has none.
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

// ResolveLink turns an href into an absolute link. Root-relative hrefs
// ("/path", "//host/path") resolve against target, other relative hrefs
// against page, which falls back to target when empty.
func ResolveLink(href, target, page string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrEmptyURL
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}

	base := page
	if strings.HasPrefix(href, "/") || base == "" {
		base = target
	}
	if ref.IsAbs() || base == "" {
		return ref.String(), nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// SameSite reports whether a link host passes the site filter: links
// without a host pass, others must contain the target host as a substring.
func SameSite(linkHost, targetHost string) bool {
	if linkHost == "" {
		return true
	}
	return strings.Contains(strings.ToLower(linkHost), strings.ToLower(targetHost))
}

// SameSiteStrict is SameSite without the pass for hostless links such as
// javascript: and mailto:.
func SameSiteStrict(linkHost, targetHost string) bool {
	return linkHost != "" && SameSite(linkHost, targetHost)
}

// ValidateTarget checks that raw is an absolute http(s) url with a host.
func ValidateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, ErrUnsupportedURL
	}
	if parsed.Host == "" {
		return nil, ErrMissingHost
	}
	return parsed, nil
}
