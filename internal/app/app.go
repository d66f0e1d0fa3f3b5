package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"news_bot/internal/bot"
	"news_bot/internal/config"
	"news_bot/internal/db"
	"news_bot/internal/render"
	"news_bot/internal/scraper"
	"news_bot/internal/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type BotApp struct {
	config   *config.BotConfig
	log      *logrus.Entry
	db       *db.MongoDB
	renderer *render.Manager
	client   *telegram.Client
	bot      *bot.Bot
	metrics  *http.Server
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func scraperConfig(cfg config.BrowserConfig) (scraper.Config, error) {
	primary, err := render.ParseEngine(cfg.Engine)
	if err != nil {
		return scraper.Config{}, err
	}
	alternate, err := render.ParseEngine(cfg.AlternateEngine)
	if err != nil {
		return scraper.Config{}, err
	}
	return scraper.Config{
		Engine:                primary,
		AlternateEngine:       alternate,
		Viewport:              render.Viewport{Width: cfg.WindowWidth, Height: cfg.WindowHeight},
		NavigationTimeout:     cfg.NavigationTimeout(),
		SettleDelay:           cfg.SettleDelay(),
		UserAgent:             cfg.UserAgent,
		RespectRobots:         cfg.RespectRobots,
		MaxConcurrentSessions: int64(cfg.MaxConcurrentSessions),
	}, nil
}

func NewBotApp(cfg *config.BotConfig) (*BotApp, error) {
	log := logrus.NewEntry(NewLogger(cfg.Logging))

	scfg, err := scraperConfig(cfg.Browser)
	if err != nil {
		return nil, err
	}

	client, err := telegram.NewClient(cfg.Telegram.Token,
		telegram.WithBaseURL(cfg.Telegram.APIURL),
		telegram.WithLogger(log.WithField("component", "telegram")),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &BotApp{
		config: cfg,
		log:    log,
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}

	var reg prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		reg = prometheus.DefaultRegisterer
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	renderLog := log.WithField("component", "render")
	a.renderer = render.NewManager(
		render.WithLogger(renderLog),
		render.WithMetrics(render.NewMetrics(reg)),
		render.WithLauncher(render.EngineFirefox, render.NewFirefoxLauncher(renderLog, cfg.Browser.InstallDrivers)),
	)

	svc := scraper.New(a.renderer, scfg, scraper.WithLogger(log.WithField("component", "scraper")))

	opts := []bot.Option{bot.WithLogger(log.WithField("component", "bot"))}
	if cfg.DB.Enabled() {
		mongoDB, err := db.NewMongoDB(ctx, cfg.DB, log.WithField("component", "db"))
		if err != nil {
			cancel()
			return nil, err
		}
		a.db = mongoDB
		opts = append(opts, bot.WithArchive(mongoDB))
	}

	a.bot = bot.New(client, svc, bot.NewTargetRegistry(cfg.News.URL), bot.Config{
		MaxItems:           cfg.News.HeadlinesCount,
		UseAlternateEngine: cfg.Browser.UseAlternate,
		Headless:           cfg.Browser.Headless,
		TimeoutSeconds:     cfg.Browser.TimeoutSec,
		PollTimeoutSec:     cfg.Telegram.PollTimeoutSec,
	}, opts...)

	return a, nil
}

func (a *BotApp) Run() error {
	a.log.Info("🤖 Запускаю бота...")
	a.log.Infof("📰 Сайт по умолчанию: %s", a.config.News.URL)
	a.log.Infof("🌐 Браузер: %s (альтернативный: %s), headless: %t",
		a.config.Browser.Engine, a.config.Browser.AlternateEngine, a.config.Browser.Headless)
	if a.db != nil {
		a.log.Infof("📁 БД: %s", a.config.DB.Database)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if a.metrics != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.log.Infof("📈 метрики на %s/metrics", a.metrics.Addr)
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("❌ сервер метрик: %v", err)
			}
		}()
	}

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- a.bot.Run(a.ctx, a.client)
	}()

	var runErr error
	select {
	case <-sigChan:
		a.log.Warn("⚠️  Получен сигнал прерывания, завершаю работу...")
		a.cancel()
		<-pollErr
	case err := <-pollErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("polling stopped: %w", err)
		}
		a.cancel()
	}

	return errors.Join(runErr, a.shutdown())
}

func (a *BotApp) shutdown() error {
	var errs []error

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.metrics.Shutdown(ctx))
		cancel()
	}
	a.wg.Wait()

	if err := a.renderer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browsers: %w", err))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
