package rules

import (
	"reflect"
	"testing"

	"tg-holiday-bot/internal/domain"
)

func holidayFixture(id, name, description string, categories ...string) domain.Holiday {
	return domain.Holiday{ID: id, Name: name, Description: description, Categories: categories}
}

func TestApplyForceWinsOverOtherFilters(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("a", "National Pizza Day", "cheesy", "food"),
		holidayFixture("b", "World Kindness Day", "be kind", "kindness"),
	}
	rules := domain.FilterRules{ForceIDs: []string{"a"}, NoFood: true}
	got := Apply(items, rules)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("ожидали только принудительный праздник, получили %v", got)
	}
}

func TestApplyBlockWinsOverForce(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("x", "Weird Day", "strange"),
		holidayFixture("y", "Calm Day", "quiet"),
	}
	rules := domain.FilterRules{ForceIDs: []string{"x", "y"}, BlockIDs: []string{"x"}}
	got := Apply(items, rules)
	if len(got) != 1 || got[0].ID != "y" {
		t.Fatalf("блокировка должна быть сильнее force: %v", got)
	}
}

func TestApplyBlockList(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("a", "First", ""),
		holidayFixture("b", "Second", ""),
	}
	got := Apply(items, domain.FilterRules{BlockIDs: []string{"a"}})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("ожидали удаление заблокированного праздника: %v", got)
	}
}

func TestApplyCategoryAllowList(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("a", "Independence Day", "", "seasonal"),
	}
	got := Apply(items, domain.FilterRules{AllowedCategories: []string{"food"}})
	if len(got) != 0 {
		t.Fatalf("праздник вне разрешённых категорий должен отфильтроваться")
	}
	got = Apply(items, domain.FilterRules{})
	if len(got) != 1 {
		t.Fatalf("nil-список категорий означает «все»")
	}
}

func TestApplyKeywordStages(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("a", "National Taco Day", "tasty taco"),
		holidayFixture("b", "International Chess Day", "world chess"),
	}
	got := Apply(items, domain.FilterRules{NoFood: true})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("гастрономический праздник должен отфильтроваться: %v", got)
	}
	got = Apply(items, domain.FilterRules{OnlyInternational: true})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("ожидали только международный праздник: %v", got)
	}
	got = Apply(items, domain.FilterRules{BlacklistKeywords: []string{"chess"}})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("чёрный список ключевых слов не сработал: %v", got)
	}
}

func TestApplySensitive(t *testing.T) {
	sensitive := domain.Holiday{ID: "s", Name: "Memorial Day", Sensitive: true}
	items := []domain.Holiday{sensitive, holidayFixture("ok", "Plain Day", "")}
	got := Apply(items, domain.FilterRules{ExcludeSensitive: true})
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("чувствительный праздник должен отфильтроваться: %v", got)
	}
}

func TestApplyIdempotentAndOrderPreserving(t *testing.T) {
	items := []domain.Holiday{
		holidayFixture("1", "Alpha Day", ""),
		holidayFixture("2", "National Soup Day", "warm soup"),
		holidayFixture("3", "Beta Day", ""),
	}
	rules := domain.FilterRules{NoFood: true}
	once := Apply(items, rules)
	twice := Apply(once, rules)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("фильтр должен быть идемпотентным: %v != %v", once, twice)
	}
	if len(once) != 2 || once[0].ID != "1" || once[1].ID != "3" {
		t.Fatalf("порядок входа должен сохраняться: %v", once)
	}
}

func TestClassifyDerivesMetadata(t *testing.T) {
	h := Classify(domain.Holiday{ID: "a", Name: "National Chocolate Cake Day", Description: "sweet"})
	if !h.HasCategory("food") {
		t.Fatalf("ожидали категорию food, получили %v", h.Categories)
	}
	s := Classify(domain.Holiday{ID: "b", Name: "Suicide Prevention Day", Description: ""})
	if !s.Sensitive {
		t.Fatalf("ожидали флаг чувствительной темы")
	}
}

func TestExplain(t *testing.T) {
	h := holidayFixture("a", "National Soup Day", "soup")
	if reason := Explain(h, domain.FilterRules{NoFood: true}); reason == "" {
		t.Fatalf("ожидали причину фильтрации")
	}
	if reason := Explain(h, domain.FilterRules{}); reason != "" {
		t.Fatalf("праздник проходит фильтры, причина должна быть пустой: %q", reason)
	}
}
