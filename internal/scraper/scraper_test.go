package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"news_bot/internal/render"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	id       string
	engine   render.Engine
	html     string
	finalURL string
	navErr   error
	delay    time.Duration
	active   *int32
	peak     *int32

	closed atomic.Bool
}

func (s *stubSession) ID() string            { return s.id }
func (s *stubSession) Engine() render.Engine { return s.engine }

func (s *stubSession) Navigate(_ context.Context, url string) (*render.Page, error) {
	if s.active != nil {
		n := atomic.AddInt32(s.active, 1)
		for {
			p := atomic.LoadInt32(s.peak)
			if n <= p || atomic.CompareAndSwapInt32(s.peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(s.active, -1)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.navErr != nil {
		return nil, s.navErr
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.html))
	if err != nil {
		return nil, err
	}
	final := url
	if s.finalURL != "" {
		final = s.finalURL
	}
	return &render.Page{URL: final, HTML: s.html, Document: doc}, nil
}

func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

type stubLauncher struct {
	engine     render.Engine
	newSession func() *stubSession

	mu       sync.Mutex
	options  []render.Options
	sessions []*stubSession
}

func (l *stubLauncher) Launch(_ context.Context, id string, opts render.Options) (render.Session, error) {
	sess := l.newSession()
	sess.id = id
	sess.engine = l.engine

	l.mu.Lock()
	l.options = append(l.options, opts)
	l.sessions = append(l.sessions, sess)
	l.mu.Unlock()
	return sess, nil
}

func (l *stubLauncher) lastOptions() render.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.options[len(l.options)-1]
}

func anchors(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<a href="/news/%d">Заголовок новости номер %d</a>`, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newService(t *testing.T, chrome, firefox *stubLauncher, cfg Config) *Service {
	t.Helper()
	m := render.NewManager(
		render.WithLauncher(render.EngineChrome, chrome),
		render.WithLauncher(render.EngineFirefox, firefox),
	)
	t.Cleanup(func() { _ = m.Close() })
	return New(m, cfg)
}

func TestExtractHeadlines_ReturnsCandidatesAndClosesSession(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{html: anchors(20)}
	}}
	firefox := &stubLauncher{engine: render.EngineFirefox, newSession: func() *stubSession { return &stubSession{} }}
	svc := newService(t, chrome, firefox, DefaultConfig())

	got, err := svc.ExtractHeadlines(context.Background(), Request{
		TargetURL:      "https://lenta.ru",
		MaxItems:       8,
		Headless:       true,
		TimeoutSeconds: 5,
	})
	require.NoError(t, err)
	require.Len(t, got, 8)
	assert.Equal(t, "Заголовок новости номер 0", got[0].Text)
	assert.Equal(t, "https://lenta.ru/news/0", got[0].URL)
	assert.Equal(t, "https://lenta.ru/news/7", got[7].URL)

	require.Len(t, chrome.sessions, 1)
	assert.True(t, chrome.sessions[0].closed.Load())
	assert.Empty(t, firefox.sessions)

	opts := chrome.lastOptions()
	assert.Equal(t, render.EngineChrome, opts.Engine)
	assert.True(t, opts.Headless)
	assert.Equal(t, 5*time.Second, opts.NavigationTimeout)
	assert.Equal(t, render.Viewport{Width: 1200, Height: 800}, opts.Viewport)
}

func TestExtractHeadlines_AlternateEngineAndDefaultTimeout(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession { return &stubSession{} }}
	firefox := &stubLauncher{engine: render.EngineFirefox, newSession: func() *stubSession {
		return &stubSession{html: anchors(3)}
	}}
	svc := newService(t, chrome, firefox, DefaultConfig())

	got, err := svc.ExtractHeadlines(context.Background(), Request{
		TargetURL:          "https://lenta.ru",
		MaxItems:           10,
		UseAlternateEngine: true,
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, chrome.sessions)

	opts := firefox.lastOptions()
	assert.Equal(t, render.EngineFirefox, opts.Engine)
	assert.False(t, opts.Headless)
	assert.Equal(t, 12*time.Second, opts.NavigationTimeout)
}

func TestExtractHeadlines_RelativeLinksUseFinalURL(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{
			html:     `<a href="story/1">Относительная ссылка на новость</a>`,
			finalURL: "https://lenta.ru/rubrics/world/",
		}
	}}
	svc := newService(t, chrome, &stubLauncher{}, DefaultConfig())

	got, err := svc.ExtractHeadlines(context.Background(), Request{TargetURL: "https://lenta.ru", MaxItems: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://lenta.ru/rubrics/world/story/1", got[0].URL)
}

func TestExtractHeadlines_EmptyPageIsNotAnError(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{html: "<html><body></body></html>"}
	}}
	svc := newService(t, chrome, &stubLauncher{}, DefaultConfig())

	got, err := svc.ExtractHeadlines(context.Background(), Request{TargetURL: "https://lenta.ru", MaxItems: 8})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractHeadlines_NavigationFailure(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{navErr: context.DeadlineExceeded}
	}}
	svc := newService(t, chrome, &stubLauncher{}, DefaultConfig())

	got, err := svc.ExtractHeadlines(context.Background(), Request{TargetURL: "https://lenta.ru", MaxItems: 8})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, render.IsNavigationError(err))
	assert.ErrorIs(t, err, render.ErrNavigationTimeout)

	require.Len(t, chrome.sessions, 1)
	assert.True(t, chrome.sessions[0].closed.Load(), "session closed after failure")
}

func TestExtractHeadlines_InvalidRequest(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession { return &stubSession{} }}
	svc := newService(t, chrome, &stubLauncher{}, DefaultConfig())
	ctx := context.Background()

	_, err := svc.ExtractHeadlines(ctx, Request{TargetURL: "ftp://lenta.ru", MaxItems: 8})
	assert.Error(t, err)

	_, err = svc.ExtractHeadlines(ctx, Request{TargetURL: "https://lenta.ru", MaxItems: 0})
	assert.ErrorIs(t, err, ErrInvalidMaxItems)

	assert.Empty(t, chrome.sessions, "nothing launched for invalid requests")
}

func TestExtractHeadlines_BoundsConcurrentSessions(t *testing.T) {
	var active, peak int32
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{html: anchors(2), delay: 30 * time.Millisecond, active: &active, peak: &peak}
	}}
	cfg := DefaultConfig()
	cfg.MaxConcurrentSessions = 2
	svc := newService(t, chrome, &stubLauncher{}, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExtractHeadlines(context.Background(), Request{TargetURL: "https://lenta.ru", MaxItems: 8})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Len(t, chrome.sessions, 6)
}

func TestExtractHeadlines_WaitingForSlotHonoursContext(t *testing.T) {
	release := make(chan struct{})
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{html: anchors(1)}
	}}
	cfg := DefaultConfig()
	cfg.MaxConcurrentSessions = 1
	svc := newService(t, chrome, &stubLauncher{}, cfg)

	// hold the only slot
	require.NoError(t, svc.slots.Acquire(context.Background(), 1))
	go func() {
		<-release
		svc.slots.Release(1)
	}()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.ExtractHeadlines(ctx, Request{TargetURL: "https://lenta.ru", MaxItems: 8})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, chrome.sessions)
}

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Учёные нашли новую планету у далёкой звезды</title>
  <meta property="og:site_name" content="Лента">
  <meta name="description" content="Краткое описание открытия">
</head>
<body>
  <nav><a href="/">Главная</a></nav>
  <article>
    <h1>Учёные нашли новую планету у далёкой звезды</h1>
    <p>Астрономы сообщили об открытии планеты, которая вращается вокруг звезды в соседней галактике. Наблюдения велись несколько лет с помощью крупнейших телескопов мира, а результаты были независимо проверены двумя группами исследователей.</p>
    <p>По словам авторов работы, планета по размеру сравнима с Землёй и находится в зоне, где может существовать жидкая вода. Это делает её одной из самых интересных целей для будущих миссий и наблюдений, которые планируется провести в ближайшие годы.</p>
    <p>Исследователи подчёркивают, что для окончательных выводов потребуется ещё много данных, однако уже сейчас открытие называют одним из самых значимых за последнее десятилетие.</p>
  </article>
</body>
</html>`

func TestReadArticle(t *testing.T) {
	chrome := &stubLauncher{engine: render.EngineChrome, newSession: func() *stubSession {
		return &stubSession{html: articleHTML}
	}}
	svc := newService(t, chrome, &stubLauncher{}, DefaultConfig())

	a, err := svc.ReadArticle(context.Background(), "https://lenta.ru/news/planet")
	require.NoError(t, err)
	assert.Equal(t, "Учёные нашли новую планету у далёкой звезды", a.Title)
	assert.Equal(t, "Лента", a.SiteName)
	assert.Equal(t, "Краткое описание открытия", a.Excerpt)
	assert.Contains(t, a.Text, "Астрономы сообщили")
	assert.Equal(t, "https://lenta.ru/news/planet", a.URL)

	require.Len(t, chrome.sessions, 1)
	assert.True(t, chrome.sessions[0].closed.Load())
}

func TestReadArticle_InvalidURL(t *testing.T) {
	svc := newService(t, &stubLauncher{}, &stubLauncher{}, DefaultConfig())
	_, err := svc.ReadArticle(context.Background(), "not a url")
	assert.Error(t, err)
}

// The static engine goes through colly against a local server.
func TestExtractHeadlines_StaticEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
			<a href="/news/1">Первая статическая новость дня</a>
			<a href="https://ria.ru/x">Чужая новость с другого сайта</a>
			<a href="/news/2"><h2>Вторая</h2></a>
		</body></html>`)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Engine = render.EngineStatic
	m := render.NewManager()
	defer m.Close()
	svc := New(m, cfg)

	got, err := svc.ExtractHeadlines(context.Background(), Request{TargetURL: srv.URL, MaxItems: 8, TimeoutSeconds: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, srv.URL+"/news/1", got[0].URL)
	assert.Equal(t, "Вторая", got[1].Text)
	assert.Equal(t, 0, m.ActiveSessions())
}
