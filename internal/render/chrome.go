package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

type chromeLauncher struct {
	log *logrus.Entry
}

func NewChromeLauncher(log *logrus.Entry) Launcher {
	return &chromeLauncher{log: log}
}

func chromeAllocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	return allocOpts
}

func (l *chromeLauncher) Launch(ctx context.Context, id string, opts Options) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromeAllocatorOptions(opts)...)

	sessLog := l.log.WithField("session_id", id)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sessLog.Debugf),
		chromedp.WithErrorf(sessLog.Debugf),
	)

	// The first Run starts the browser; it must not get a deadline or the
	// process dies with it.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromeSession{
		id:            id,
		opts:          opts,
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

type chromeSession struct {
	id   string
	opts Options

	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) ID() string     { return s.id }
func (s *chromeSession) Engine() Engine { return EngineChrome }

func (s *chromeSession) Navigate(ctx context.Context, url string) (*Page, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionClosed
	}

	navCtx, cancel := boundedContext(s.ctx, ctx, s.opts.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return nil, timeoutError(err)
	}

	if err := settle(ctx, s.opts.SettleDelay); err != nil {
		return nil, err
	}

	snapCtx, cancelSnap := boundedContext(s.ctx, ctx, s.opts.NavigationTimeout)
	defer cancelSnap()

	var html, location string
	if err := chromedp.Run(snapCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		if snapCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: snapshot dom: %v", ErrNavigationTimeout, err)
		}
		return nil, fmt.Errorf("snapshot dom: %w", timeoutError(err))
	}

	return newPage(location, html)
}

// boundedContext derives a context from the browser tab that ends after
// timeout or as soon as the request context is done.
func boundedContext(tab, request context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(tab, timeout)
	stop := context.AfterFunc(request, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return s.closeErr
}
