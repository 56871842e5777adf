package rules

import (
	"strings"

	"tg-holiday-bot/internal/domain"
)

// Наборы ключевых слов — единственное место эвристической классификации
// праздников. Списки подобраны по текстам каталога.
var (
	foodKeywords = []string{
		"chocolate", "cookie", "cake", "pie", "pizza", "ice cream", "bake",
		"candy", "dessert", "sandwich", "taco", "burger", "bread", "soup",
		"coffee", "tea", "wine", "beer", "cocktail", "cheese", "food", "snack",
	}
	religiousKeywords = []string{
		"religious", "saint", "church", "prayer", "faith", "holy", "temple",
		"mosque", "bible", "god",
	}
	weirdKeywords = []string{
		"weird", "absurd", "bizarre", "silly", "wacky", "odd", "strange",
		"ridiculous", "goofy", "quirky",
	}
	internationalKeywords = []string{
		"international", "world", "global", "united nations", "worldwide",
	}
	sensitiveKeywords = []string{
		"death", "suicide", "cancer", "abuse", "violence", "war", "genocide",
		"addiction", "grief", "memorial",
	}
	petsKeywords     = []string{"cat", "dog", "pet", "kitten", "puppy", "animal"}
	learningKeywords = []string{"book", "read", "poetry", "dictionary", "grammar", "library", "literacy"}
	gamesKeywords    = []string{"game", "chess", "puzzle", "crossword", "scrabble", "trivia"}
	natureKeywords   = []string{"tree", "garden", "flower", "earth", "nature", "hike", "outdoors"}
	healthKeywords   = []string{"fitness", "health", "run", "walk", "yoga", "meditation"}
	kindnessKeywords = []string{"kindness", "friend", "hug", "thank", "compliment", "help", "appreciation"}
	techKeywords     = []string{"tech", "computer", "internet", "coding", "science", "math", "engineer", "robot"}
	seasonalKeywords = []string{"independence", "christmas", "halloween", "easter", "thanksgiving", "new year", "valentine"}
	historyKeywords  = []string{"history", "historic", "founded", "anniversary", "heritage", "commemorat"}
)

// categoryRules задаёт порядок категорий: праздник получает все подходящие.
var categoryRules = []struct {
	label    string
	keywords []string
}{
	{"food", foodKeywords},
	{"pets", petsKeywords},
	{"learning", learningKeywords},
	{"games", gamesKeywords},
	{"nature", natureKeywords},
	{"health", healthKeywords},
	{"kindness", kindnessKeywords},
	{"tech", techKeywords},
	{"religious", religiousKeywords},
	{"international", internationalKeywords},
	{"weird", weirdKeywords},
	{"seasonal", seasonalKeywords},
	{"history", historyKeywords},
}

// KnownCategories возвращает список допустимых категорий в фиксированном порядке.
func KnownCategories() []string {
	out := make([]string, 0, len(categoryRules))
	for _, rule := range categoryRules {
		out = append(out, rule.label)
	}
	return out
}

// IsKnownCategory проверяет категорию без учёта регистра.
func IsKnownCategory(category string) bool {
	lower := strings.ToLower(strings.TrimSpace(category))
	for _, rule := range categoryRules {
		if rule.label == lower {
			return true
		}
	}
	return false
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func holidayText(h domain.Holiday) string {
	return strings.ToLower(h.Name + " " + h.Description)
}

// Classify вычисляет производные метаданные праздника: категории и
// флаг чувствительной темы. Вызывается один раз при загрузке каталога.
func Classify(h domain.Holiday) domain.Holiday {
	if len(h.Categories) == 0 {
		text := holidayText(h)
		for _, rule := range categoryRules {
			if matchesAny(text, rule.keywords) {
				h.Categories = append(h.Categories, rule.label)
			}
		}
	}
	if !h.Sensitive {
		h.Sensitive = matchesAny(holidayText(h), sensitiveKeywords)
	}
	return h
}

// IsWeird сообщает, подходит ли праздник под «странные» сюрприз-дни.
func IsWeird(h domain.Holiday) bool {
	return h.HasCategory("weird") || matchesAny(holidayText(h), weirdKeywords)
}

// IsInternational сообщает о международной тематике праздника.
func IsInternational(h domain.Holiday) bool {
	return h.HasCategory("international") || matchesAny(holidayText(h), internationalKeywords)
}

func isFood(h domain.Holiday) bool {
	return h.HasCategory("food") || matchesAny(holidayText(h), foodKeywords)
}

func isReligious(h domain.Holiday) bool {
	return h.HasCategory("religious") || matchesAny(holidayText(h), religiousKeywords)
}

func isSensitiveTheme(h domain.Holiday) bool {
	return h.Sensitive || matchesAny(holidayText(h), sensitiveKeywords)
}

func matchesBlacklist(h domain.Holiday, blacklist []string) bool {
	text := holidayText(h)
	for _, kw := range blacklist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
