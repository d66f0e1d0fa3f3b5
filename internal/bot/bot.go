// Package bot is the chat front end. Every update is handled on its own
// goroutine and the blocking extraction runs on a separate one, so a slow
// page never holds up other chats.
package bot

import (
	"context"
	"sync"

	"news_bot/internal/models"
	"news_bot/internal/scraper"
	"news_bot/internal/telegram"
	"news_bot/internal/urlutil"

	"github.com/sirupsen/logrus"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
}

type Scraper interface {
	ExtractHeadlines(ctx context.Context, req scraper.Request) ([]models.HeadlineCandidate, error)
	ReadArticle(ctx context.Context, url string) (*models.ExtractedArticle, error)
}

type Archive interface {
	SaveHeadlines(ctx context.Context, chatID int64, source string, headlines []models.HeadlineCandidate) error
	RecentHeadlines(ctx context.Context, chatID int64, source string, limit int) ([]models.ArchivedHeadline, error)
}

type Poller interface {
	Poll(ctx context.Context, timeoutSec int, handle func(telegram.Update)) error
}

type Config struct {
	MaxItems           int
	UseAlternateEngine bool
	Headless           bool
	TimeoutSeconds     int
	HistoryLimit       int
	PollTimeoutSec     int
	// BotName filters "/cmd@name" commands addressed to other bots.
	BotName string
}

type Bot struct {
	messenger Messenger
	scraper   Scraper
	archive   Archive
	targets   *TargetRegistry
	cfg       Config
	log       *logrus.Entry

	wg sync.WaitGroup
}

type Option func(*Bot)

// WithArchive enables /history and archiving of delivered headlines.
func WithArchive(a Archive) Option {
	return func(b *Bot) {
		b.archive = a
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(b *Bot) {
		if log != nil {
			b.log = log
		}
	}
}

func New(messenger Messenger, s Scraper, targets *TargetRegistry, cfg Config, opts ...Option) *Bot {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = cfg.MaxItems
	}
	b := &Bot{
		messenger: messenger,
		scraper:   s,
		targets:   targets,
		cfg:       cfg,
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run polls for updates until ctx is done, then waits for the handlers
// still in flight.
func (b *Bot) Run(ctx context.Context, p Poller) error {
	b.log.Info("🤖 бот запущен")
	err := p.Poll(ctx, b.cfg.PollTimeoutSec, func(u telegram.Update) {
		b.HandleUpdate(ctx, u)
	})
	b.wg.Wait()
	return err
}

// HandleUpdate dispatches u on a new goroutine and returns immediately.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	if u.Message == nil {
		return
	}
	msg := *u.Message
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.WithField("chat_id", msg.Chat.ID).Errorf("❌ паника в обработчике: %v", r)
			}
		}()
		b.handle(ctx, msg)
	}()
}

// Wait blocks until all dispatched updates are handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handle(ctx context.Context, msg telegram.Message) {
	cmd, ok := parseCommand(msg.Text, b.cfg.BotName)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	log := b.log.WithFields(logrus.Fields{"chat_id": chatID, "command": cmd.Name})
	log.Debug("получена команда")

	switch cmd.Name {
	case "start", "help":
		b.reply(ctx, log, chatID, startText)
	case "seturl":
		b.setURL(ctx, log, chatID, cmd.Args)
	case "headlines", "latest":
		b.headlines(ctx, log, chatID)
	case "read":
		b.read(ctx, log, chatID, cmd.Args)
	case "history":
		b.history(ctx, log, chatID)
	default:
		b.reply(ctx, log, chatID, unknownCmdText)
	}
}

func (b *Bot) reply(ctx context.Context, log *logrus.Entry, chatID int64, text string) int {
	id, err := b.messenger.SendMessage(ctx, chatID, text)
	if err != nil {
		log.Warnf("⚠️ не удалось отправить сообщение: %v", err)
	}
	return id
}

func (b *Bot) edit(ctx context.Context, log *logrus.Entry, chatID int64, messageID int, text string) {
	if err := b.messenger.EditMessageText(ctx, chatID, messageID, text); err != nil {
		log.Warnf("⚠️ не удалось изменить сообщение: %v", err)
	}
}

func (b *Bot) setURL(ctx context.Context, log *logrus.Entry, chatID int64, args string) {
	if args == "" {
		b.reply(ctx, log, chatID, setURLUsageText)
		return
	}
	u, err := urlutil.ValidateTarget(args)
	if err != nil {
		b.reply(ctx, log, chatID, invalidURLText(err))
		return
	}
	b.targets.Set(chatID, u.String())
	log.WithField("url", u.String()).Info("🎯 целевой сайт изменён")
	b.reply(ctx, log, chatID, targetSetText(u.String()))
}

type fetchResult struct {
	headlines []models.HeadlineCandidate
	err       error
}

// fetchAsync runs the blocking extraction on its own goroutine.
func (b *Bot) fetchAsync(ctx context.Context, req scraper.Request) <-chan fetchResult {
	ch := make(chan fetchResult, 1)
	go func() {
		h, err := b.scraper.ExtractHeadlines(ctx, req)
		ch <- fetchResult{headlines: h, err: err}
	}()
	return ch
}

func (b *Bot) headlines(ctx context.Context, log *logrus.Entry, chatID int64) {
	target := b.targets.Get(chatID)
	log = log.WithField("url", target)

	waiting, err := b.messenger.SendMessage(ctx, chatID, collectingText)
	if err != nil {
		log.Warnf("⚠️ не удалось отправить сообщение: %v", err)
		return
	}

	var res fetchResult
	select {
	case res = <-b.fetchAsync(ctx, scraper.Request{
		TargetURL:          target,
		MaxItems:           b.cfg.MaxItems,
		UseAlternateEngine: b.cfg.UseAlternateEngine,
		Headless:           b.cfg.Headless,
		TimeoutSeconds:     b.cfg.TimeoutSeconds,
	}):
	case <-ctx.Done():
		return
	}

	switch {
	case res.err != nil:
		log.Errorf("❌ ошибка при парсинге: %v", res.err)
		b.edit(ctx, log, chatID, waiting, errorText(res.err))
		return
	case len(res.headlines) == 0:
		b.edit(ctx, log, chatID, waiting, noHeadlinesText)
		return
	}

	b.edit(ctx, log, chatID, waiting, formatHeadlines(res.headlines))
	log.WithField("count", len(res.headlines)).Info("✅ заголовки отправлены")

	if b.archive != nil {
		if err := b.archive.SaveHeadlines(ctx, chatID, target, res.headlines); err != nil {
			log.Warnf("⚠️ не удалось сохранить заголовки: %v", err)
		}
	}
}

func (b *Bot) read(ctx context.Context, log *logrus.Entry, chatID int64, args string) {
	raw := args
	if raw == "" {
		raw = b.targets.Get(chatID)
	}
	u, err := urlutil.ValidateTarget(raw)
	if err != nil {
		b.reply(ctx, log, chatID, invalidURLText(err))
		return
	}
	log = log.WithField("url", u.String())

	waiting, err := b.messenger.SendMessage(ctx, chatID, readingText)
	if err != nil {
		log.Warnf("⚠️ не удалось отправить сообщение: %v", err)
		return
	}

	article, err := b.scraper.ReadArticle(ctx, u.String())
	switch {
	case err != nil:
		log.Errorf("❌ ошибка при чтении статьи: %v", err)
		b.edit(ctx, log, chatID, waiting, errorText(err))
	case article.Title == "" && article.Excerpt == "" && article.Text == "":
		b.edit(ctx, log, chatID, waiting, emptyArticleText)
	default:
		b.edit(ctx, log, chatID, waiting, formatArticle(article))
	}
}

func (b *Bot) history(ctx context.Context, log *logrus.Entry, chatID int64) {
	if b.archive == nil {
		b.reply(ctx, log, chatID, historyOffText)
		return
	}
	target := b.targets.Get(chatID)
	items, err := b.archive.RecentHeadlines(ctx, chatID, target, b.cfg.HistoryLimit)
	if err != nil {
		log.Errorf("❌ ошибка чтения истории: %v", err)
		b.reply(ctx, log, chatID, errorText(err))
		return
	}
	if len(items) == 0 {
		b.reply(ctx, log, chatID, noHistoryText)
		return
	}
	b.reply(ctx, log, chatID, formatHistory(target, items))
}
