package domain

import "time"

// Holiday описывает один праздник из каталога.
type Holiday struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug,omitempty"`
	Description string   `json:"description,omitempty"`
	Emoji       string   `json:"emoji,omitempty"`
	Date        string   `json:"date"` // MM-DD
	FunFacts    []string `json:"funFacts,omitempty"`

	// Производные поля, вычисляются один раз при загрузке каталога.
	Categories []string `json:"categories,omitempty"`
	Sensitive  bool     `json:"sensitive,omitempty"`
}

// HasCategory проверяет принадлежность праздника к категории.
func (h Holiday) HasCategory(category string) bool {
	for _, c := range h.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Destination описывает один настроенный канал доставки внутри тенанта.
type Destination struct {
	ID                  int64  `json:"id"`
	TenantID            string `json:"tenant_id"`
	Hour                int    `json:"hour"`
	Minute              int    `json:"minute"`
	Timezone            string `json:"timezone"`
	ToneOverride        string `json:"tone_override,omitempty"`
	ChoiceIndex         int    `json:"choice_index"`
	SkipWeekends        bool   `json:"skip_weekends"`
	LastDeliveredDayKey string `json:"last_delivered_day_key,omitempty"`
}

// FilterRules описывает правила отбора праздников для тенанта.
type FilterRules struct {
	// AllowedCategories == nil означает «все категории».
	AllowedCategories []string `json:"allowed_categories,omitempty"`
	BlacklistKeywords []string `json:"blacklist_keywords,omitempty"`
	OnlyWeird         bool     `json:"only_weird,omitempty"`
	OnlyInternational bool     `json:"only_international,omitempty"`
	NoFood            bool     `json:"no_food,omitempty"`
	NoReligious       bool     `json:"no_religious,omitempty"`
	SafeMode          bool     `json:"safe_mode,omitempty"`
	ExcludeSensitive  bool     `json:"exclude_sensitive,omitempty"`
	BlockIDs          []string `json:"block_ids,omitempty"`
	ForceIDs          []string `json:"force_ids,omitempty"`
}

// WildcardState хранит сюрприз-дни текущего месяца.
type WildcardState struct {
	Enabled  bool   `json:"enabled"`
	MonthKey string `json:"month_key,omitempty"` // YYYY-MM
	Days     []int  `json:"days,omitempty"`
}

// EntitlementInfo хранит первичный источник данных о тарифе тенанта.
type EntitlementInfo struct {
	Paid            bool       `json:"paid"`
	TrialRedeemedAt *time.Time `json:"trial_redeemed_at,omitempty"`
	TrialEndsAt     *time.Time `json:"trial_ends_at,omitempty"`
}

// StreakState хранит серию последовательных дней с реакциями.
type StreakState struct {
	Count      int    `json:"count"`
	Best       int    `json:"best"`
	LastDayKey string `json:"last_day_key,omitempty"`
}

// PromptKind описывает вид промо-подсказки.
type PromptKind string

const (
	PromptVote   PromptKind = "vote"
	PromptReview PromptKind = "review"
	PromptUpsell PromptKind = "upsell"
	PromptShare  PromptKind = "share"
)

// PromoState хранит время последнего показа каждой подсказки.
type PromoState struct {
	LastShown map[PromptKind]time.Time `json:"last_shown,omitempty"`
}

// HistoryEntry описывает одну доставку в кольце аналитики.
type HistoryEntry struct {
	DayKey        string `json:"day_key"`
	DestinationID int64  `json:"destination_id"`
	HolidayID     string `json:"holiday_id"`
	Reactions     int    `json:"reactions"`
	Hour          int    `json:"hour"`
}

// AnalyticsState хранит скользящую историю и счётчики вовлечённости.
type AnalyticsState struct {
	History                []HistoryEntry   `json:"history,omitempty"`
	PostsByDestination     map[int64]int    `json:"posts_by_destination,omitempty"`
	ReactionsByDestination map[int64]int    `json:"reactions_by_destination,omitempty"`
	ReactionsByHoliday     map[string]int   `json:"reactions_by_holiday,omitempty"`
}

// TenantConfig — полный персистентный документ одного тенанта.
type TenantConfig struct {
	TenantID          string          `json:"tenant_id"`
	Destinations      []Destination   `json:"destinations,omitempty"`
	Timezone          string          `json:"timezone"`
	Hour              int             `json:"hour"`
	Minute            int             `json:"minute"`
	Tone              string          `json:"tone,omitempty"`
	Branding          bool            `json:"branding"`
	RoleMentionID     string          `json:"role_mention_id,omitempty"`
	Quiet             bool            `json:"quiet,omitempty"`
	PromotionsEnabled bool            `json:"promotions_enabled"`
	Filters           FilterRules     `json:"filters"`
	Wildcard          WildcardState   `json:"wildcard"`
	Entitlement       EntitlementInfo `json:"entitlement"`
	Streak            StreakState     `json:"streak"`
	StreakRoleID      string          `json:"streak_role_id,omitempty"`
	StreakGoal        int             `json:"streak_goal,omitempty"`
	Promo             PromoState      `json:"promo"`
	Analytics         AnalyticsState  `json:"analytics"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Destination возвращает канал доставки по идентификатору.
func (c *TenantConfig) Destination(id int64) (Destination, bool) {
	for _, d := range c.Destinations {
		if d.ID == id {
			return d, true
		}
	}
	return Destination{}, false
}

// UpsertDestination добавляет или заменяет канал доставки.
func (c *TenantConfig) UpsertDestination(dest Destination) {
	for i, d := range c.Destinations {
		if d.ID == dest.ID {
			c.Destinations[i] = dest
			return
		}
	}
	c.Destinations = append(c.Destinations, dest)
}

// RemoveDestination удаляет канал доставки. Возвращает true, если канал существовал.
func (c *TenantConfig) RemoveDestination(id int64) bool {
	for i, d := range c.Destinations {
		if d.ID == id {
			c.Destinations = append(c.Destinations[:i], c.Destinations[i+1:]...)
			return true
		}
	}
	return false
}

// DailyPost описывает готовое к доставке сообщение дня.
type DailyPost struct {
	Holiday       Holiday
	DayKey        string
	Teaser        string
	HeadlineNames []string
	Branding      bool
	RoleMentionID string
	Quiet         bool
	Wildcard      bool
	PromoPrompt   string
}
