package selection

import (
	"errors"
	"strings"

	"tg-holiday-bot/internal/domain"
)

// ErrEmptySelection возвращается при выборе из пустого списка.
var ErrEmptySelection = errors.New("пустой список кандидатов")

// Tone задаёт настроение ежедневных постов.
type Tone string

const (
	ToneWholesome  Tone = "wholesome"
	ToneSilly      Tone = "silly"
	ToneNerdy      Tone = "nerdy"
	ToneHistorical Tone = "historical"
	ToneGlobal     Tone = "global"
)

// KnownTones возвращает допустимые значения тона.
func KnownTones() []Tone {
	return []Tone{ToneWholesome, ToneSilly, ToneNerdy, ToneHistorical, ToneGlobal}
}

// IsKnownTone проверяет значение тона.
func IsKnownTone(raw string) bool {
	for _, t := range KnownTones() {
		if string(t) == strings.ToLower(strings.TrimSpace(raw)) {
			return true
		}
	}
	return false
}

// toneWeights — таблица весов ключевых слов по тонам.
var toneWeights = map[Tone]map[string]float64{
	ToneWholesome: {
		"kindness": 3, "friend": 2, "family": 2, "hug": 2, "love": 2,
		"appreciation": 2, "thank": 1, "community": 1,
	},
	ToneSilly: {
		"silly": 3, "weird": 2, "absurd": 2, "wacky": 2, "goofy": 2,
		"funny": 2, "joke": 2, "prank": 1,
	},
	ToneNerdy: {
		"science": 3, "math": 2, "tech": 2, "computer": 2, "space": 2,
		"robot": 2, "engineer": 1, "trivia": 1,
	},
	ToneHistorical: {
		"history": 3, "historic": 3, "founded": 2, "anniversary": 2,
		"heritage": 2, "ancient": 1, "commemorat": 1,
	},
	ToneGlobal: {
		"international": 3, "world": 3, "global": 2, "united nations": 2,
		"culture": 1,
	},
}

func toneScore(h domain.Holiday, tone Tone) float64 {
	weights, ok := toneWeights[tone]
	if !ok {
		return 0
	}
	text := strings.ToLower(h.Name + " " + h.Description)
	var score float64
	for kw, weight := range weights {
		if strings.Contains(text, kw) {
			score += weight
		}
	}
	return score
}

// PickByTone выбирает праздник, лучше всего отвечающий тону. При
// нулевом лучшем счёте используется fallbackIndex, ограниченный
// границами списка. Равные счёты разрешаются порядком входа.
func PickByTone(items []domain.Holiday, tone Tone, fallbackIndex int) (domain.Holiday, error) {
	switch len(items) {
	case 0:
		return domain.Holiday{}, ErrEmptySelection
	case 1:
		return items[0], nil
	}
	best := 0
	bestScore := toneScore(items[0], tone)
	for i := 1; i < len(items); i++ {
		if score := toneScore(items[i], tone); score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore == 0 {
		idx := fallbackIndex
		if idx < 0 {
			idx = 0
		}
		if idx > len(items)-1 {
			idx = len(items) - 1
		}
		return items[idx], nil
	}
	return items[best], nil
}
