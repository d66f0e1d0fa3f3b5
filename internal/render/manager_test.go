package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id       string
	navErr   error
	closeErr error
	html     string

	mu     sync.Mutex
	closes int
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) Engine() Engine { return EngineStatic }

func (s *fakeSession) Navigate(_ context.Context, url string) (*Page, error) {
	if s.navErr != nil {
		return nil, s.navErr
	}
	return newPage(url, s.html)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeLauncher struct {
	session   *fakeSession
	launchErr error
	launched  int
}

func (l *fakeLauncher) Launch(_ context.Context, id string, _ Options) (Session, error) {
	l.launched++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.session.id = id
	return l.session, nil
}

func newTestManager(l Launcher, reg prometheus.Registerer) (*Manager, *Metrics) {
	metrics := NewMetrics(reg)
	return NewManager(WithLauncher(EngineStatic, l), WithMetrics(metrics)), metrics
}

func staticOptions() Options {
	opts := DefaultOptions()
	opts.Engine = EngineStatic
	return opts
}

func TestWithSession_ClosesAfterSuccess(t *testing.T) {
	sess := &fakeSession{html: `<a href="/x">hello</a>`}
	m, metrics := newTestManager(&fakeLauncher{session: sess}, prometheus.NewRegistry())

	var got *Page
	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(p *Page) error {
		got = p
		assert.Equal(t, 1, m.ActiveSessions())
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Document.Find("a").Length())
	assert.Equal(t, 1, sess.closeCount())
	assert.Equal(t, 0, m.ActiveSessions())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsOpened.WithLabelValues("static")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsClosed.WithLabelValues("static")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestWithSession_ClosesWhenCallbackFails(t *testing.T) {
	sess := &fakeSession{html: "<p></p>"}
	m, _ := newTestManager(&fakeLauncher{session: sess}, nil)
	boom := errors.New("boom")

	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, IsNavigationError(err))
	assert.Equal(t, 1, sess.closeCount())
}

func TestWithSession_ClosesWhenCallbackPanics(t *testing.T) {
	sess := &fakeSession{html: "<p></p>"}
	m, _ := newTestManager(&fakeLauncher{session: sess}, nil)

	assert.Panics(t, func() {
		_ = m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error {
			panic("extractor bug")
		})
	})
	assert.Equal(t, 1, sess.closeCount())
}

func TestWithSession_NavigationTimeout(t *testing.T) {
	sess := &fakeSession{navErr: fmt.Errorf("%w: load event", ErrNavigationTimeout)}
	m, metrics := newTestManager(&fakeLauncher{session: sess}, prometheus.NewRegistry())
	called := false

	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsNavigationError(err))
	assert.ErrorIs(t, err, ErrNavigationTimeout)
	assert.Contains(t, err.Error(), "navigation error (static)")
	assert.Equal(t, 1, sess.closeCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NavigationFailures.WithLabelValues("static", "timeout")))
}

func TestWithSession_CloseErrorDoesNotMaskResult(t *testing.T) {
	sess := &fakeSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED"), closeErr: errors.New("kill failed")}
	m, _ := newTestManager(&fakeLauncher{session: sess}, nil)

	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	assert.NotContains(t, err.Error(), "kill failed")

	sess.navErr = nil
	err = m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error { return nil })
	assert.NoError(t, err)
}

func TestWithSession_LaunchFailure(t *testing.T) {
	m, _ := newTestManager(&fakeLauncher{launchErr: errors.New("chrome not found")}, nil)

	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error { return nil })

	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, EngineStatic, navErr.Engine)
	assert.Equal(t, "driver", navErr.Kind())
}

func TestWithSession_UnknownEngine(t *testing.T) {
	m, _ := newTestManager(&fakeLauncher{session: &fakeSession{}}, nil)
	opts := staticOptions()
	opts.Engine = "opera"

	err := m.WithSession(context.Background(), opts, "https://lenta.ru", func(*Page) error { return nil })

	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestWithSession_RobotsRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer srv.Close()

	launcher := &fakeLauncher{session: &fakeSession{html: "<p></p>"}}
	m, _ := newTestManager(launcher, nil)
	opts := staticOptions()
	opts.RespectRobots = true

	err := m.WithSession(context.Background(), opts, srv.URL+"/private/news", func(*Page) error { return nil })
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.True(t, IsNavigationError(err))
	assert.Zero(t, launcher.launched)

	err = m.WithSession(context.Background(), opts, srv.URL+"/news", func(*Page) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, launcher.launched)
}

func TestManagerClose(t *testing.T) {
	sess := &fakeSession{html: "<p></p>"}
	m, _ := newTestManager(&fakeLauncher{session: sess}, nil)

	err := m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error {
		require.NoError(t, m.Close())
		assert.Equal(t, 1, sess.closeCount())
		return nil
	})
	require.NoError(t, err)

	err = m.WithSession(context.Background(), staticOptions(), "https://lenta.ru", func(*Page) error { return nil })
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine(" Chrome ")
	require.NoError(t, err)
	assert.Equal(t, EngineChrome, e)

	_, err = ParseEngine("opera")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestNavigationErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNavigationTimeout, "timeout"},
		{ErrDisallowed, "robots"},
		{context.Canceled, "canceled"},
		{errors.New("websocket closed"), "driver"},
	}
	for _, tt := range tests {
		navErr := &NavigationError{Engine: EngineChrome, URL: "u", Err: tt.err}
		assert.Equal(t, tt.want, navErr.Kind(), tt.err.Error())
	}
}

func TestTimeoutError(t *testing.T) {
	assert.ErrorIs(t, timeoutError(context.DeadlineExceeded), ErrNavigationTimeout)
	other := errors.New("x")
	assert.Equal(t, other, timeoutError(other))
	assert.NoError(t, timeoutError(nil))
}
