package render

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGuard checks a target against the site's robots.txt.
type RobotsGuard struct {
	client *http.Client
}

func NewRobotsGuard(client *http.Client) *RobotsGuard {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RobotsGuard{client: client}
}

// Allowed reports whether userAgent may fetch target. When robots.txt can
// not be loaded the answer is true together with the error.
func (g *RobotsGuard) Allowed(ctx context.Context, target, userAgent string) (bool, error) {
	u, err := url.Parse(target)
	if err != nil {
		return true, err
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("fetch %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, fmt.Errorf("parse %s: %w", robotsURL, err)
	}

	return data.TestAgent(u.RequestURI(), userAgent), nil
}
