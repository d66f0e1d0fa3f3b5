package bot

import (
	"fmt"
	"html"
	"strings"

	"news_bot/internal/models"
	"news_bot/internal/telegram"
)

const (
	startText = "<b>Новости без рекламы на сайте 😉!</b>\n\n" +
		"Используй команду:\n" +
		"<code>/seturl https://news.ru</code> — установить сайт\n" +
		"<code>/headlines</code> — получить заголовки\n" +
		"<code>/read https://news.ru/article</code> — краткое содержание статьи\n" +
		"<code>/history</code> — последние отправленные заголовки\n"

	collectingText   = "Собираю заголовки..."
	readingText      = "Читаю статью..."
	noHeadlinesText  = "Не удалось найти заголовки на странице."
	noHistoryText    = "История пуста."
	historyOffText   = "История недоступна: архив не настроен."
	setURLUsageText  = "Использование: /seturl https://example.com"
	unknownCmdText   = "Неизвестная команда. Список команд: /help"
	emptyArticleText = "Не удалось выделить текст статьи."
)

func targetSetText(url string) string {
	return "Целевой сайт установлен: " + html.EscapeString(url)
}

func invalidURLText(err error) string {
	return "Некорректный адрес: " + html.EscapeString(err.Error())
}

func errorText(err error) string {
	return "Ошибка при парсинге: <pre>" + html.EscapeString(err.Error()) + "</pre>"
}

func headlineLine(text, url string) string {
	return fmt.Sprintf(`• <a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(text))
}

// formatHeadlines renders one bullet per headline and drops trailing lines
// that would push the message over the Telegram limit.
func formatHeadlines(headlines []models.HeadlineCandidate) string {
	lines := make([]string, 0, len(headlines))
	for _, h := range headlines {
		lines = append(lines, headlineLine(h.Text, h.URL))
	}
	return joinWithinLimit(lines)
}

func formatHistory(source string, items []models.ArchivedHeadline) string {
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "<b>Последние заголовки</b> "+html.EscapeString(source))
	for _, h := range items {
		lines = append(lines, headlineLine(h.Text, h.URL)+
			fmt.Sprintf(" <i>%s</i>", h.DeliveredAt.Local().Format("02.01 15:04")))
	}
	return joinWithinLimit(lines)
}

func formatArticle(a *models.ExtractedArticle) string {
	var b strings.Builder
	title := a.Title
	if title == "" {
		title = a.URL
	}
	fmt.Fprintf(&b, `<b><a href="%s">%s</a></b>`, html.EscapeString(a.URL), html.EscapeString(title))
	if a.SiteName != "" {
		b.WriteString("\n<i>" + html.EscapeString(a.SiteName) + "</i>")
	}
	if a.Byline != "" {
		b.WriteString("\n" + html.EscapeString(a.Byline))
	}

	summary := a.Excerpt
	if summary == "" {
		summary = a.Text
	}
	if summary != "" {
		b.WriteString("\n\n")
		// leave room for the header, escaping can only grow the text
		room := telegram.MaxMessageLength - len([]rune(b.String())) - 1
		b.WriteString(truncateEscaped(summary, room))
	}
	return b.String()
}

// truncateEscaped escapes s and cuts it on a rune boundary so that the
// escaped result fits into limit characters without splitting an entity.
func truncateEscaped(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		piece := html.EscapeString(string(r))
		size := len([]rune(piece))
		if n+size > limit-1 {
			b.WriteString("…")
			return b.String()
		}
		b.WriteString(piece)
		n += size
	}
	return b.String()
}

func joinWithinLimit(lines []string) string {
	var b strings.Builder
	n := 0
	for i, line := range lines {
		size := len([]rune(line))
		if i > 0 {
			size++
		}
		if n+size > telegram.MaxMessageLength {
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		n += size
	}
	return b.String()
}
