package rules

import "tg-holiday-bot/internal/domain"

// stage — один предикат конвейера фильтрации. Возвращает true, если
// праздник проходит дальше.
type stage func(h domain.Holiday, rules domain.FilterRules) bool

// Конвейер применяется по убыванию приоритета: блокировки, ключевые
// слова, категории, чувствительные темы. Force-список обрабатывается
// отдельно в Apply, так как он завершает фильтрацию досрочно.
var pipeline = []stage{
	stageBlocked,
	stageOnlyInternational,
	stageOnlyWeird,
	stageNoFood,
	stageNoReligious,
	stageSafeMode,
	stageBlacklist,
	stageCategories,
	stageSensitive,
}

func stageBlocked(h domain.Holiday, rules domain.FilterRules) bool {
	return !containsID(rules.BlockIDs, h.ID)
}

func stageOnlyInternational(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.OnlyInternational || IsInternational(h)
}

func stageOnlyWeird(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.OnlyWeird || IsWeird(h)
}

func stageNoFood(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.NoFood || !isFood(h)
}

func stageNoReligious(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.NoReligious || !isReligious(h)
}

func stageSafeMode(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.SafeMode || !isSensitiveTheme(h)
}

func stageBlacklist(h domain.Holiday, rules domain.FilterRules) bool {
	return !matchesBlacklist(h, rules.BlacklistKeywords)
}

func stageCategories(h domain.Holiday, rules domain.FilterRules) bool {
	if rules.AllowedCategories == nil {
		return true
	}
	for _, allowed := range rules.AllowedCategories {
		if h.HasCategory(allowed) {
			return true
		}
	}
	return false
}

func stageSensitive(h domain.Holiday, rules domain.FilterRules) bool {
	return !rules.ExcludeSensitive || !h.Sensitive
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Apply фильтрует список праздников по правилам тенанта. Чистая функция,
// порядок входа сохраняется.
//
// Непустой force-список завершает фильтрацию досрочно: остаются только
// перечисленные в нём праздники. Явная блокировка того же id сильнее
// принудительного включения.
func Apply(items []domain.Holiday, rules domain.FilterRules) []domain.Holiday {
	out := make([]domain.Holiday, 0, len(items))
	if len(rules.ForceIDs) > 0 {
		for _, h := range items {
			if containsID(rules.ForceIDs, h.ID) && !containsID(rules.BlockIDs, h.ID) {
				out = append(out, h)
			}
		}
		return out
	}
	for _, h := range items {
		if passes(h, rules) {
			out = append(out, h)
		}
	}
	return out
}

func passes(h domain.Holiday, rules domain.FilterRules) bool {
	for _, st := range pipeline {
		if !st(h, rules) {
			return false
		}
	}
	return true
}

// Explain возвращает человекочитаемую причину, по которой праздник не
// проходит фильтры, либо пустую строку, если он проходит.
func Explain(h domain.Holiday, rules domain.FilterRules) string {
	if len(rules.ForceIDs) > 0 {
		if containsID(rules.BlockIDs, h.ID) {
			return "праздник заблокирован явно"
		}
		if !containsID(rules.ForceIDs, h.ID) {
			return "действует force-список, праздник в него не входит"
		}
		return ""
	}
	switch {
	case !stageBlocked(h, rules):
		return "праздник заблокирован явно"
	case !stageOnlyInternational(h, rules):
		return "включён фильтр «только международные»"
	case !stageOnlyWeird(h, rules):
		return "включён фильтр «только странные»"
	case !stageNoFood(h, rules):
		return "исключены гастрономические праздники"
	case !stageNoReligious(h, rules):
		return "исключены религиозные праздники"
	case !stageSafeMode(h, rules):
		return "отфильтрован безопасным режимом"
	case !stageBlacklist(h, rules):
		return "совпадение с чёрным списком ключевых слов"
	case !stageCategories(h, rules):
		return "категории праздника вне списка разрешённых"
	case !stageSensitive(h, rules):
		return "исключены чувствительные темы"
	}
	return ""
}
