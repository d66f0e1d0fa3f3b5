package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

var (
	ErrMissingToken          = errors.New("telegram.token is required (TELEGRAM_TOKEN)")
	ErrInvalidNewsURL        = errors.New("news.url must be an absolute http(s) url")
	ErrInvalidHeadlinesCount = errors.New("news.headlines_count must be at least 1")
	ErrInvalidTimeout        = errors.New("browser.timeout_sec must be at least 1")
	ErrInvalidSettle         = errors.New("browser.settle_ms must be non-negative")
	ErrInvalidViewport       = errors.New("browser.window_width and window_height must be positive")
	ErrInvalidEngine         = errors.New("browser.engine must be one of: chrome, firefox, static")
	ErrInvalidConcurrency    = errors.New("browser.max_concurrent_sessions must be at least 1")
	ErrInvalidLogLevel       = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat      = errors.New("logging.format must be 'text' or 'json'")
)

type TelegramConfig struct {
	Token          string `yaml:"token"`
	APIURL         string `yaml:"api_url"`
	PollTimeoutSec int    `yaml:"poll_timeout_sec"`
}

type NewsConfig struct {
	URL            string `yaml:"url"`
	HeadlinesCount int    `yaml:"headlines_count"`
}

type BrowserConfig struct {
	Engine                string `yaml:"engine"`
	AlternateEngine       string `yaml:"alternate_engine"`
	UseAlternate          bool   `yaml:"use_alternate"`
	Headless              bool   `yaml:"headless"`
	TimeoutSec            int    `yaml:"timeout_sec"`
	SettleMS              int    `yaml:"settle_ms"`
	WindowWidth           int    `yaml:"window_width"`
	WindowHeight          int    `yaml:"window_height"`
	UserAgent             string `yaml:"user_agent"`
	RespectRobots         bool   `yaml:"respect_robots"`
	InstallDrivers        bool   `yaml:"install_drivers"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
}

func (b BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

func (b BrowserConfig) SettleDelay() time.Duration {
	return time.Duration(b.SettleMS) * time.Millisecond
}

type DBConfig struct {
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		Headlines string `yaml:"headlines"`
	} `yaml:"collections"`
}

// Enabled is false when no connection string is configured; the bot then
// runs without an archive.
func (d DBConfig) Enabled() bool {
	return d.Connection != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type BotConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	News     NewsConfig     `yaml:"news"`
	Browser  BrowserConfig  `yaml:"browser"`
	DB       DBConfig       `yaml:"db"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

func Default() *BotConfig {
	cfg := &BotConfig{
		Telegram: TelegramConfig{
			APIURL:         "https://api.telegram.org",
			PollTimeoutSec: 30,
		},
		News: NewsConfig{
			URL:            "https://lenta.ru",
			HeadlinesCount: 8,
		},
		Browser: BrowserConfig{
			Engine:                "chrome",
			AlternateEngine:       "firefox",
			Headless:              true,
			TimeoutSec:            12,
			SettleMS:              1000,
			WindowWidth:           1200,
			WindowHeight:          800,
			UserAgent:             "Mozilla/5.0 (NewsBot/1.0)",
			MaxConcurrentSessions: 2,
		},
		DB: DBConfig{
			Database: "news_bot",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	cfg.DB.Collections.Headlines = "headlines"
	return cfg
}

// LoadConfig reads defaults, then the YAML file at path (a missing file is
// not an error), then .env and the process environment.
func LoadConfig(path string) (*BotConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *BotConfig) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = parseBool(v)
		}
	}

	str("TELEGRAM_TOKEN", &c.Telegram.Token)
	str("TELEGRAM_API_URL", &c.Telegram.APIURL)
	str("NEWS_URL", &c.News.URL)
	if err := num("HEADLINES_COUNT", &c.News.HeadlinesCount); err != nil {
		return err
	}
	str("BROWSER_ENGINE", &c.Browser.Engine)
	if v, ok := lookup("USE_CHROME"); ok && strings.TrimSpace(v) != "" {
		c.Browser.UseAlternate = !parseBool(v)
	}
	flag("HEADLESS", &c.Browser.Headless)
	if err := num("NAV_TIMEOUT_SEC", &c.Browser.TimeoutSec); err != nil {
		return err
	}
	flag("RESPECT_ROBOTS", &c.Browser.RespectRobots)
	flag("INSTALL_DRIVERS", &c.Browser.InstallDrivers)
	str("MONGO_URI", &c.DB.Connection)
	str("LOG_LEVEL", &c.Logging.Level)
	str("METRICS_ADDR", &c.Metrics.Addr)
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (c *BotConfig) Validate() error {
	if c.Telegram.Token == "" {
		return ErrMissingToken
	}
	u, err := url.Parse(c.News.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidNewsURL, c.News.URL)
	}
	if c.News.HeadlinesCount < 1 {
		return ErrInvalidHeadlinesCount
	}
	if c.Browser.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}
	if c.Browser.SettleMS < 0 {
		return ErrInvalidSettle
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return ErrInvalidViewport
	}
	for _, e := range []string{c.Browser.Engine, c.Browser.AlternateEngine} {
		if !validEngine(e) {
			return fmt.Errorf("%w: %q", ErrInvalidEngine, e)
		}
	}
	if c.Browser.MaxConcurrentSessions < 1 {
		return ErrInvalidConcurrency
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}

func validEngine(e string) bool {
	switch strings.ToLower(strings.TrimSpace(e)) {
	case "chrome", "firefox", "static":
		return true
	}
	return false
}
