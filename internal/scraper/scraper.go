// Package scraper is the invocation contract of the headline core: it picks
// an engine for a request, opens one render session under a concurrency
// bound and runs the extractor over the snapshot.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"news_bot/internal/extractor"
	"news_bot/internal/models"
	"news_bot/internal/render"
	"news_bot/internal/urlutil"

	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var ErrInvalidMaxItems = errors.New("max items must be positive")

// Request describes a single extraction call. It is not retained.
type Request struct {
	TargetURL          string
	MaxItems           int
	UseAlternateEngine bool
	Headless           bool
	// TimeoutSeconds falls back to the service default when not positive.
	TimeoutSeconds int
}

func (r Request) extractionConfig(defaultTimeout time.Duration) models.ExtractionConfig {
	seconds := r.TimeoutSeconds
	if seconds <= 0 {
		seconds = int(defaultTimeout / time.Second)
	}
	return models.ExtractionConfig{
		TargetURL:                strings.TrimSpace(r.TargetURL),
		MaxItems:                 r.MaxItems,
		NavigationTimeoutSeconds: seconds,
	}
}

type Config struct {
	Engine                render.Engine
	AlternateEngine       render.Engine
	Viewport              render.Viewport
	NavigationTimeout     time.Duration
	SettleDelay           time.Duration
	UserAgent             string
	RespectRobots         bool
	MaxConcurrentSessions int64
}

func DefaultConfig() Config {
	d := render.DefaultOptions()
	return Config{
		Engine:                render.EngineChrome,
		AlternateEngine:       render.EngineFirefox,
		Viewport:              d.Viewport,
		NavigationTimeout:     d.NavigationTimeout,
		SettleDelay:           d.SettleDelay,
		UserAgent:             d.UserAgent,
		MaxConcurrentSessions: 2,
	}
}

type Service struct {
	sessions  *render.Manager
	extractor *extractor.Extractor
	slots     *semaphore.Weighted
	cfg       Config
	log       *logrus.Entry
}

type Option func(*Service)

func WithExtractor(e *extractor.Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func New(sessions *render.Manager, cfg Config, opts ...Option) *Service {
	if cfg.MaxConcurrentSessions < 1 {
		cfg.MaxConcurrentSessions = 1
	}
	s := &Service{
		sessions: sessions,
		cfg:      cfg,
		slots:    semaphore.NewWeighted(cfg.MaxConcurrentSessions),
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = extractor.New(extractor.WithLogger(s.log))
	}
	return s
}

func (s *Service) options(alternate, headless bool, timeout time.Duration) render.Options {
	engine := s.cfg.Engine
	if alternate {
		engine = s.cfg.AlternateEngine
	}
	return render.Options{
		Engine:            engine,
		Headless:          headless,
		Viewport:          s.cfg.Viewport,
		NavigationTimeout: timeout,
		SettleDelay:       s.cfg.SettleDelay,
		UserAgent:         s.cfg.UserAgent,
		RespectRobots:     s.cfg.RespectRobots,
	}
}

// withSlot runs fn while holding one of the session slots.
func (s *Service) withSlot(ctx context.Context, fn func() error) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for browser slot: %w", err)
	}
	defer s.slots.Release(1)
	return fn()
}

// ExtractHeadlines renders req.TargetURL and returns at most req.MaxItems
// candidates in discovery order. Navigation problems come back as
// *render.NavigationError; an empty slice is a valid result.
func (s *Service) ExtractHeadlines(ctx context.Context, req Request) ([]models.HeadlineCandidate, error) {
	cfg := req.extractionConfig(s.cfg.NavigationTimeout)
	if _, err := urlutil.ValidateTarget(cfg.TargetURL); err != nil {
		return nil, fmt.Errorf("target %q: %w", cfg.TargetURL, err)
	}
	if cfg.MaxItems <= 0 {
		return nil, ErrInvalidMaxItems
	}

	opts := s.options(req.UseAlternateEngine, req.Headless, cfg.NavigationTimeout())
	log := s.log.WithFields(logrus.Fields{"url": cfg.TargetURL, "engine": opts.Engine})

	var headlines []models.HeadlineCandidate
	err := s.withSlot(ctx, func() error {
		return s.sessions.WithSession(ctx, opts, cfg.TargetURL, func(page *render.Page) error {
			res := s.extractor.Extract(page.Document, extractor.Input{
				TargetURL: cfg.TargetURL,
				PageURL:   page.URL,
				MaxItems:  cfg.MaxItems,
			})
			headlines = res.Headlines
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.WithField("count", len(headlines)).Info("📰 заголовки собраны")
	return headlines, nil
}

// ReadArticle renders rawURL with the primary engine and runs readability
// over the snapshot.
func (s *Service) ReadArticle(ctx context.Context, rawURL string) (*models.ExtractedArticle, error) {
	target, err := urlutil.ValidateTarget(rawURL)
	if err != nil {
		return nil, fmt.Errorf("article %q: %w", rawURL, err)
	}

	opts := s.options(false, true, s.cfg.NavigationTimeout)

	var article *models.ExtractedArticle
	err = s.withSlot(ctx, func() error {
		return s.sessions.WithSession(ctx, opts, target.String(), func(page *render.Page) error {
			a, err := readArticle(page)
			if err != nil {
				return err
			}
			article = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

func readArticle(page *render.Page) (*models.ExtractedArticle, error) {
	pageURL, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	return &models.ExtractedArticle{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Excerpt:  strings.TrimSpace(article.Excerpt),
		Text:     strings.Join(strings.Fields(article.TextContent), " "),
		URL:      page.URL,
	}, nil
}
