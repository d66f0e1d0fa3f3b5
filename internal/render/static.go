package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/gocolly/colly"
	"golang.org/x/net/html/charset"
)

// staticLauncher fetches pages over plain HTTP. Nothing is executed, so
// pages that build their markup client-side come back mostly empty.
type staticLauncher struct{}

func NewStaticLauncher() Launcher {
	return staticLauncher{}
}

func (staticLauncher) Launch(_ context.Context, id string, opts Options) (Session, error) {
	collectorOpts := []func(*colly.Collector){colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	c := colly.NewCollector(collectorOpts...)
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(opts.NavigationTimeout)
	return &staticSession{id: id, collector: c}, nil
}

type staticSession struct {
	id        string
	collector *colly.Collector
	closed    atomic.Bool
}

func (s *staticSession) ID() string     { return s.id }
func (s *staticSession) Engine() Engine { return EngineStatic }

func (s *staticSession) Navigate(ctx context.Context, url string) (*Page, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	var (
		body        []byte
		finalURL    string
		contentType string
	)
	s.collector.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- s.collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, timeoutError(err)
		}
	}

	if body == nil {
		return nil, fmt.Errorf("empty response from %s", url)
	}

	html, err := decodeBody(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return newPage(finalURL, html)
}

func (s *staticSession) Close() error {
	s.closed.Store(true)
	return nil
}

// decodeBody converts body to UTF-8. colly already transcodes responses
// whose Content-Type names a charset; the rest are sniffed from the BOM
// and meta tags.
func decodeBody(body []byte, contentType string) (string, error) {
	if strings.Contains(strings.ToLower(contentType), "charset") {
		return string(body), nil
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
