// Package render produces queryable snapshots of pages rendered by a
// browser. A session owns one browser process, is used for a single
// navigation and is always closed by the caller; Manager.WithSession does
// that bookkeeping.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type Engine string

const (
	EngineChrome  Engine = "chrome"
	EngineFirefox Engine = "firefox"
	EngineStatic  Engine = "static"
)

func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineChrome, EngineFirefox, EngineStatic:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEngine, s)
}

type Viewport struct {
	Width  int
	Height int
}

type Options struct {
	Engine            Engine
	Headless          bool
	Viewport          Viewport
	NavigationTimeout time.Duration
	// SettleDelay gives client-side scripts time to run after load. It is
	// a heuristic, not a guarantee that rendering has finished.
	SettleDelay   time.Duration
	UserAgent     string
	RespectRobots bool
}

func DefaultOptions() Options {
	return Options{
		Engine:            EngineChrome,
		Headless:          true,
		Viewport:          Viewport{Width: 1200, Height: 800},
		NavigationTimeout: 12 * time.Second,
		SettleDelay:       time.Second,
		UserAgent:         "Mozilla/5.0 (NewsBot/1.0)",
	}
}

// Page is the DOM snapshot taken after navigation.
type Page struct {
	URL      string
	HTML     string
	Document *goquery.Document
}

func newPage(finalURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	return &Page{URL: finalURL, HTML: html, Document: doc}, nil
}

type Session interface {
	ID() string
	Engine() Engine
	Navigate(ctx context.Context, url string) (*Page, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context, id string, opts Options) (Session, error)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
