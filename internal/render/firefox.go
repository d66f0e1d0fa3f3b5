package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"
)

type firefoxLauncher struct {
	log     *logrus.Entry
	install bool

	installOnce sync.Once
	installErr  error
}

// NewFirefoxLauncher drives Firefox through playwright. With install set,
// the playwright driver and Firefox build are downloaded on first launch.
func NewFirefoxLauncher(log *logrus.Entry, install bool) Launcher {
	return &firefoxLauncher{log: log, install: install}
}

func (l *firefoxLauncher) runOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		Browsers: []string{"firefox"},
		Verbose:  false,
	}
}

func (l *firefoxLauncher) Launch(ctx context.Context, id string, opts Options) (Session, error) {
	if l.install {
		l.installOnce.Do(func() {
			l.log.Info("📦 устанавливаю playwright и firefox")
			l.installErr = playwright.Install(l.runOptions())
		})
		if l.installErr != nil {
			return nil, fmt.Errorf("install playwright: %w", l.installErr)
		}
	}

	pw, err := playwright.Run(l.runOptions())
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch firefox: %w", err)
	}

	pageOpts := playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
	}
	if opts.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("open firefox page: %w", err)
	}

	return &firefoxSession{id: id, opts: opts, pw: pw, browser: browser, page: page}, nil
}

type firefoxSession struct {
	id   string
	opts Options

	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	mu     sync.Mutex
	closed bool
}

func (s *firefoxSession) ID() string     { return s.id }
func (s *firefoxSession) Engine() Engine { return EngineFirefox }

func (s *firefoxSession) Navigate(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	// playwright calls are not context-aware; closing the browser is the
	// only way to abort one.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(s.opts.NavigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return nil, err
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("snapshot dom: %w", err)
	}
	return newPage(s.page.URL(), html)
}

func (s *firefoxSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close firefox: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}
