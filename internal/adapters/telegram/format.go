package telegram

import (
	"fmt"
	"html"
	"strings"

	"tg-holiday-bot/internal/domain"
)

const brandingFooter = "🎈 Праздник дня — ежедневные праздники для вашего чата"

// FormatDailyPost собирает HTML-текст поста дня.
func FormatDailyPost(post domain.DailyPost) string {
	var b strings.Builder

	if post.Wildcard {
		b.WriteString("🎲 <b>Сюрприз-день!</b>\n\n")
	}

	b.WriteString(headline(post.Holiday))
	b.WriteString("\n")

	if post.Holiday.Description != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(post.Holiday.Description))
		b.WriteString("\n")
	}
	if len(post.Holiday.FunFacts) > 0 {
		b.WriteString("\n💡 ")
		b.WriteString(html.EscapeString(post.Holiday.FunFacts[0]))
		b.WriteString("\n")
	}
	if len(post.HeadlineNames) > 1 {
		others := make([]string, 0, len(post.HeadlineNames)-1)
		for _, name := range post.HeadlineNames {
			if name != post.Holiday.Name {
				others = append(others, html.EscapeString(name))
			}
		}
		if len(others) > 0 {
			b.WriteString("\nСегодня также: ")
			b.WriteString(strings.Join(others, ", "))
			b.WriteString("\n")
		}
	}
	if post.Teaser != "" {
		b.WriteString(fmt.Sprintf("\n⏭ Завтра: %s\n", html.EscapeString(post.Teaser)))
	}
	if post.RoleMentionID != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(post.RoleMentionID))
		b.WriteString("\n")
	}
	if post.PromoPrompt != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(post.PromoPrompt))
		b.WriteString("\n")
	}
	if post.Branding {
		b.WriteString("\n")
		b.WriteString(brandingFooter)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHoliday собирает HTML-карточку праздника для команд
// today/date/search/random.
func FormatHoliday(h domain.Holiday, dateLabel string) string {
	var b strings.Builder
	b.WriteString(headline(h))
	if dateLabel != "" {
		b.WriteString(fmt.Sprintf("\n📅 %s", html.EscapeString(dateLabel)))
	}
	if h.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(html.EscapeString(h.Description))
	}
	return b.String()
}

// FormatFacts собирает список фактов праздника.
func FormatFacts(h domain.Holiday) string {
	if len(h.FunFacts) == 0 {
		return fmt.Sprintf("Для праздника %s фактов пока нет.", html.EscapeString(h.Name))
	}
	var b strings.Builder
	b.WriteString(headline(h))
	b.WriteString("\n")
	for _, fact := range h.FunFacts {
		b.WriteString("\n💡 ")
		b.WriteString(html.EscapeString(fact))
	}
	return b.String()
}

func headline(h domain.Holiday) string {
	emoji := h.Emoji
	if emoji == "" {
		emoji = "🎉"
	}
	return fmt.Sprintf("%s <b>%s</b>", emoji, html.EscapeString(h.Name))
}
