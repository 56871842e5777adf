package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/usecase/rules"
)

// ErrInvalidDate возвращается при некорректном вводе даты.
var ErrInvalidDate = errors.New("некорректная дата, ожидается MM-DD")

var dateInputRegex = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})$`)

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Service — read-only каталог праздников, загружается один раз при старте.
type Service struct {
	byDate map[string][]domain.Holiday
	all    []domain.Holiday
}

// NewService загружает каталог и вычисляет производные метаданные.
func NewService(source domain.CatalogSource) (*Service, error) {
	raw, err := source.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка каталога: %w", err)
	}
	byDate := make(map[string][]domain.Holiday, len(raw))
	var all []domain.Holiday
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		items := raw[key]
		classified := make([]domain.Holiday, 0, len(items))
		for _, h := range items {
			if h.Date == "" {
				h.Date = key
			}
			classified = append(classified, rules.Classify(h))
		}
		byDate[key] = classified
		all = append(all, classified...)
	}
	return &Service{byDate: byDate, all: all}, nil
}

// ByDate возвращает упорядоченный список праздников на дату MM-DD.
func (s *Service) ByDate(dateKey string) []domain.Holiday {
	return s.byDate[dateKey]
}

// ByName ищет праздники по подстроке названия, до пяти лучших совпадений.
func (s *Service) ByName(query string) []domain.Holiday {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	type scored struct {
		score float64
		item  domain.Holiday
	}
	var matches []scored
	words := strings.Fields(q)
	for _, h := range s.all {
		name := strings.ToLower(h.Name)
		if strings.Contains(name, q) {
			matches = append(matches, scored{score: float64(len(q)) / float64(len(name)), item: h})
			continue
		}
		hits := 0
		for _, w := range words {
			if strings.Contains(name, w) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{score: float64(hits) / float64(len(words)), item: h})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	out := make([]domain.Holiday, 0, 5)
	for i := 0; i < len(matches) && i < 5; i++ {
		out = append(out, matches[i].item)
	}
	return out
}

// Random возвращает случайный праздник каталога.
func (s *Service) Random(intn func(n int) int) (domain.Holiday, bool) {
	if len(s.all) == 0 {
		return domain.Holiday{}, false
	}
	return s.all[intn(len(s.all))], true
}

// RangeEntry — праздник с датой для дайджестов «на неделю вперёд».
type RangeEntry struct {
	DateKey string
	Holiday domain.Holiday
}

// Range возвращает первый праздник каждого дня на days дней начиная с from.
func (s *Service) Range(from time.Time, days int) []RangeEntry {
	var out []RangeEntry
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		key := domain.DateKey(d)
		if hits := s.byDate[key]; len(hits) > 0 {
			out = append(out, RangeEntry{DateKey: key, Holiday: hits[0]})
		}
	}
	return out
}

// Size возвращает количество праздников в каталоге.
func (s *Service) Size() int {
	return len(s.all)
}

// ParseDateInput приводит пользовательский ввод MM-DD или MM/DD к ключу каталога.
func ParseDateInput(input string) (string, error) {
	match := dateInputRegex.FindStringSubmatch(strings.TrimSpace(input))
	if match == nil {
		return "", ErrInvalidDate
	}
	var mm, dd int
	fmt.Sscanf(match[1], "%d", &mm)
	fmt.Sscanf(match[2], "%d", &dd)
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return "", ErrInvalidDate
	}
	return fmt.Sprintf("%02d-%02d", mm, dd), nil
}

// PrettyDate печатает ключ каталога в виде «Jul 4».
func PrettyDate(dateKey string) string {
	parts := strings.SplitN(dateKey, "-", 2)
	if len(parts) != 2 {
		return dateKey
	}
	var mm, dd int
	fmt.Sscanf(parts[0], "%d", &mm)
	fmt.Sscanf(parts[1], "%d", &dd)
	if mm < 1 || mm > 12 {
		return dateKey
	}
	return fmt.Sprintf("%s %d", monthNames[mm-1], dd)
}
