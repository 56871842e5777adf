package domain

import "time"

// Tier описывает тариф тенанта.
type Tier string

const (
	TierFree    Tier = "free"
	TierTrial   Tier = "trial"
	TierPremium Tier = "premium"
)

// Entitled сообщает, открыты ли премиум-возможности.
func (t Tier) Entitled() bool {
	return t == TierTrial || t == TierPremium
}

// TierPlan описывает ограничения тарифа.
type TierPlan struct {
	Tier            Tier
	Name            string
	MaxDestinations int
	// DailyPrefix ограничивает выбор праздника дня: бесплатный тариф
	// видит только первый элемент каталога, без тона и сюрприз-дней.
	DailyPrefix int
	UpcomingMax int
}

var tierPlans = map[Tier]TierPlan{
	TierFree: {
		Tier:            TierFree,
		Name:            "Free",
		MaxDestinations: 1,
		DailyPrefix:     1,
		UpcomingMax:     0,
	},
	TierTrial: {
		Tier:            TierTrial,
		Name:            "Trial",
		MaxDestinations: 3,
		DailyPrefix:     0,
		UpcomingMax:     30,
	},
	TierPremium: {
		Tier:            TierPremium,
		Name:            "Premium",
		MaxDestinations: 3,
		DailyPrefix:     0,
		UpcomingMax:     30,
	},
}

// PlanForTier возвращает ограничения тарифа.
func PlanForTier(tier Tier) TierPlan {
	if plan, ok := tierPlans[tier]; ok {
		return plan
	}
	return tierPlans[TierFree]
}

// TrialDuration — длительность пробного периода.
const TrialDuration = 7 * 24 * time.Hour
