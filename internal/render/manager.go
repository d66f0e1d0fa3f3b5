package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager launches sessions through the registered engines and keeps track
// of the live ones so that shutdown can terminate them.
type Manager struct {
	launchers map[Engine]Launcher
	robots    *RobotsGuard
	metrics   *Metrics
	log       *logrus.Entry

	mu       sync.Mutex
	sessions map[string]Session
	closed   bool
}

type ManagerOption func(*Manager)

func WithLauncher(engine Engine, l Launcher) ManagerOption {
	return func(m *Manager) {
		m.launchers[engine] = l
	}
}

func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func WithLogger(log *logrus.Entry) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithRobotsGuard(g *RobotsGuard) ManagerOption {
	return func(m *Manager) {
		m.robots = g
	}
}

// NewManager registers the chrome, firefox and static engines unless an
// option replaces them.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		launchers: make(map[Engine]Launcher),
		sessions:  make(map[string]Session),
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, ok := m.launchers[EngineChrome]; !ok {
		m.launchers[EngineChrome] = NewChromeLauncher(m.log)
	}
	if _, ok := m.launchers[EngineFirefox]; !ok {
		m.launchers[EngineFirefox] = NewFirefoxLauncher(m.log, false)
	}
	if _, ok := m.launchers[EngineStatic]; !ok {
		m.launchers[EngineStatic] = NewStaticLauncher()
	}
	if m.robots == nil {
		m.robots = NewRobotsGuard(nil)
	}
	return m
}

// WithSession launches a session, navigates it to target and hands the
// page to fn. The session is closed on every path; a failing Close is
// logged and never replaces the error returned here.
func (m *Manager) WithSession(ctx context.Context, opts Options, target string, fn func(*Page) error) error {
	id := uuid.NewString()
	log := m.log.WithFields(logrus.Fields{
		"url":        target,
		"engine":     opts.Engine,
		"session_id": id,
	})

	if opts.RespectRobots && m.robots != nil {
		allowed, err := m.robots.Allowed(ctx, target, opts.UserAgent)
		if err != nil {
			log.Warnf("⚠️ robots.txt недоступен, продолжаю: %v", err)
		}
		if !allowed {
			m.metrics.RecordNavigationFailure(opts.Engine, "robots")
			return &NavigationError{Engine: opts.Engine, URL: target, Err: ErrDisallowed}
		}
	}

	launcher, ok := m.launchers[opts.Engine]
	if !ok {
		return &NavigationError{Engine: opts.Engine, URL: target, Err: ErrUnknownEngine}
	}

	sess, err := launcher.Launch(ctx, id, opts)
	if err != nil {
		m.metrics.RecordNavigationFailure(opts.Engine, "launch")
		log.Errorf("❌ не удалось запустить браузер: %v", err)
		return navigationError(opts.Engine, target, err)
	}
	m.metrics.RecordSessionOpened(opts.Engine)

	defer func() {
		m.untrack(id)
		if cerr := sess.Close(); cerr != nil {
			log.Warnf("⚠️ ошибка при закрытии браузера: %v", cerr)
		}
		m.metrics.RecordSessionClosed(opts.Engine)
		log.Debug("сессия закрыта")
	}()

	if !m.track(sess) {
		return navigationError(opts.Engine, target, ErrManagerClosed)
	}

	start := time.Now()
	page, err := sess.Navigate(ctx, target)
	if err != nil {
		navErr := navigationError(opts.Engine, target, err)
		var typed *NavigationError
		if errors.As(navErr, &typed) {
			m.metrics.RecordNavigationFailure(opts.Engine, typed.Kind())
		}
		log.Warnf("⚠️ навигация не удалась: %v", err)
		return navErr
	}
	m.metrics.RecordNavigation(opts.Engine, time.Since(start))
	log.WithField("final_url", page.URL).Debug("страница загружена")

	return fn(page)
}

func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) track(sess Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.sessions[sess.ID()] = sess
	return true
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Close terminates every live session. Sessions started afterwards fail
// with ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
