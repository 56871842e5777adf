package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-holiday-bot/internal/adapters/telegram"
	"tg-holiday-bot/internal/domain"
	"tg-holiday-bot/internal/infra/metrics"
	"tg-holiday-bot/internal/usecase/catalog"
	"tg-holiday-bot/internal/usecase/entitlement"
	"tg-holiday-bot/internal/usecase/rules"
	"tg-holiday-bot/internal/usecase/selection"
	"tg-holiday-bot/internal/usecase/tenants"
)

// InstallCounter отдаёт количество установивших бота чатов.
type InstallCounter interface {
	InstallCount(ctx context.Context) (int, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot           *tgbotapi.BotAPI
	log           zerolog.Logger
	tenantUC      *tenants.Service
	catalogUC     *catalog.Service
	entitlementUC *entitlement.Service
	billing       domain.BillingClient
	engagement    domain.EngagementQueue
	installs      InstallCounter
	adminIDs      map[int64]struct{}

	mu   sync.Mutex
	intn func(n int) int
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, tenantUC *tenants.Service, catalogUC *catalog.Service, entitlementUC *entitlement.Service, billing domain.BillingClient, engagement domain.EngagementQueue, installs InstallCounter, adminIDs []int64) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Handler{
		bot:           bot,
		log:           log,
		tenantUC:      tenantUC,
		catalogUC:     catalogUC,
		entitlementUC: entitlementUC,
		billing:       billing,
		engagement:    engagement,
		installs:      installs,
		adminIDs:      admins,
		intn:          rnd.Intn,
	}
}

func (h *Handler) randInt(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.intn(n)
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		h.maybeRecordEngagement(ctx, msg)
		return
	}

	command, payload := splitCommand(text)
	metrics.IncCommand(command)
	tenantID := strconv.FormatInt(msg.Chat.ID, 10)

	switch command {
	case "start":
		h.reply(msg.Chat.ID, h.buildStartMessage())
	case "help":
		h.reply(msg.Chat.ID, h.buildHelpMessage())
	case "today":
		h.handleToday(ctx, msg.Chat.ID, tenantID, 0)
	case "tomorrow":
		h.handlePremiumPreview(ctx, msg.Chat.ID, tenantID, 1)
	case "date":
		h.handleDate(msg.Chat.ID, payload)
	case "search":
		h.handleSearch(msg.Chat.ID, payload)
	case "random":
		h.handleRandom(msg.Chat.ID)
	case "facts":
		h.handleFacts(msg.Chat.ID, payload)
	case "fact":
		h.handleFact(msg.Chat.ID)
	case "setup":
		h.handleSetup(ctx, msg.Chat.ID, tenantID, payload)
	case "remove":
		h.handleRemove(ctx, msg.Chat.ID, tenantID)
	case "status", "settings":
		h.handleStatus(ctx, msg.Chat.ID, tenantID)
	case "streak":
		h.handleStreak(ctx, msg.Chat.ID, tenantID)
	case "categories":
		h.handleCategories(msg.Chat.ID)
	case "setcategories":
		h.handleSetCategories(ctx, msg.Chat.ID, tenantID, payload)
	case "excludesensitive":
		h.handleExcludeSensitive(ctx, msg.Chat.ID, tenantID, payload)
	case "trial":
		h.handleTrial(ctx, msg)
	case "premium", "upgrade", "manage":
		h.handleUpgrade(ctx, msg)
	case "block":
		h.handleOverride(ctx, msg.Chat.ID, tenantID, payload, h.tenantUC.BlockHoliday, "Праздник заблокирован.")
	case "unblock":
		h.handleOverride(ctx, msg.Chat.ID, tenantID, payload, h.tenantUC.UnblockHoliday, "Блокировка снята.")
	case "force":
		h.handleOverride(ctx, msg.Chat.ID, tenantID, payload, h.tenantUC.ForceHoliday, "Праздник будет включён мимо фильтров.")
	case "unforce":
		h.handleOverride(ctx, msg.Chat.ID, tenantID, payload, h.tenantUC.UnforceHoliday, "Принудительное включение снято.")
	case "overrides":
		h.handleOverrides(ctx, msg.Chat.ID, tenantID)
	case "why":
		h.handleWhy(ctx, msg.Chat.ID, tenantID)
	case "analytics":
		h.handleAnalytics(ctx, msg.Chat.ID, tenantID)
	case "week", "upcoming":
		h.handleUpcoming(ctx, msg.Chat.ID, tenantID, command, payload)
	case "vote":
		h.handlePromo(ctx, msg.Chat.ID, tenantID, domain.PromptVote, "🗳 Поддержите бота голосом в каталоге: https://t.me/BotFather")
	case "rate":
		h.handlePromo(ctx, msg.Chat.ID, tenantID, domain.PromptReview, "⭐ Оцените бота — это помогает другим чатам нас найти.")
	case "share":
		h.handlePromo(ctx, msg.Chat.ID, tenantID, domain.PromptShare, "📣 Поделитесь ботом: перешлите это сообщение в соседний чат.")
	case "invite":
		h.handlePromo(ctx, msg.Chat.ID, tenantID, domain.PromptShare, "🤝 Пригласите бота в другой чат: https://t.me/HolidayOfDayBot?startgroup=true")
	case "app":
		h.handlePromo(ctx, msg.Chat.ID, tenantID, domain.PromptUpsell, "📱 Полный календарь праздников: https://holidayofday.app")
	case "support":
		h.reply(msg.Chat.ID, "🛟 Вопросы и идеи: @holiday_of_day_support")
	case "grantpremium":
		h.handleGrant(ctx, msg, payload, true)
	case "revokepremium":
		h.handleGrant(ctx, msg, payload, false)
	case "installcount":
		h.handleInstallCount(ctx, msg)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func splitCommand(text string) (string, string) {
	fields := strings.SplitN(text, " ", 2)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	payload := ""
	if len(fields) > 1 {
		payload = strings.TrimSpace(fields[1])
	}
	return strings.ToLower(command), payload
}

// maybeRecordEngagement ставит событие вовлечённости в очередь. DayKey
// здесь — UTC-ключ для грубой дедупликации; локальный день канала
// вычисляет воркер. Точная дедупликация «первое событие дня» тоже на
// его стороне.
func (h *Handler) maybeRecordEngagement(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Chat.IsPrivate() {
		return
	}
	ev := domain.EngagementEvent{
		ID:            uuid.NewString(),
		TenantID:      strconv.FormatInt(msg.Chat.ID, 10),
		DestinationID: msg.Chat.ID,
		ActorID:       msg.From.ID,
		DayKey:        domain.DayKey(time.Now().UTC()),
		OccurredAt:    time.Now().UTC(),
	}
	if err := h.engagement.Enqueue(ctx, ev); err != nil {
		h.log.Warn().Err(err).Str("tenant", ev.TenantID).Msg("bot: постановка события вовлечённости")
	}
}

func (h *Handler) handleToday(ctx context.Context, chatID int64, tenantID string, offset int) {
	res, err := h.tenantUC.Preview(ctx, tenantID, offset)
	switch {
	case errors.Is(err, selection.ErrNoHolidayForDay):
		h.reply(chatID, "На этот день в каталоге пусто. Загляните завтра!")
		return
	case errors.Is(err, selection.ErrAllFilteredOut):
		h.reply(chatID, "Праздники на этот день есть, но ваши фильтры отсеяли их все. Проверьте /why и /overrides.")
		return
	case err != nil:
		h.replyError(chatID, err)
		return
	}
	text := telegram.FormatHoliday(res.Holiday, "")
	if res.Wildcard {
		text = "🎲 <b>Сюрприз-день!</b>\n\n" + text
	}
	h.reply(chatID, text)
}

func (h *Handler) handlePremiumPreview(ctx context.Context, chatID int64, tenantID string, offset int) {
	tier, err := h.entitlementUC.Tier(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if !tier.Entitled() {
		h.replyPremiumPitch(chatID)
		return
	}
	h.handleToday(ctx, chatID, tenantID, offset)
}

func (h *Handler) handleDate(chatID int64, payload string) {
	dateKey, err := catalog.ParseDateInput(payload)
	if err != nil {
		h.reply(chatID, "Укажите дату в формате ММ-ДД, например /date 07-04")
		return
	}
	items := h.catalogUC.ByDate(dateKey)
	if len(items) == 0 {
		h.reply(chatID, fmt.Sprintf("На %s праздников в каталоге нет.", catalog.PrettyDate(dateKey)))
		return
	}
	h.reply(chatID, telegram.FormatHoliday(items[0], catalog.PrettyDate(dateKey)))
}

func (h *Handler) handleSearch(chatID int64, payload string) {
	if payload == "" {
		h.reply(chatID, "Укажите запрос: /search pizza")
		return
	}
	hits := h.catalogUC.ByName(payload)
	if len(hits) == 0 {
		h.reply(chatID, "Ничего не нашлось. Попробуйте другой запрос.")
		return
	}
	var b strings.Builder
	b.WriteString("🔎 Найдено:\n")
	for i, hit := range hits {
		date := ""
		if hit.Date != "" {
			date = fmt.Sprintf(" — %s", catalog.PrettyDate(hit.Date))
		}
		b.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, hit.Name, date))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleRandom(chatID int64) {
	holiday, ok := h.catalogUC.Random(h.randInt)
	if !ok {
		h.reply(chatID, "Каталог пуст.")
		return
	}
	label := ""
	if holiday.Date != "" {
		label = catalog.PrettyDate(holiday.Date)
	}
	h.reply(chatID, telegram.FormatHoliday(holiday, label))
}

func (h *Handler) handleFacts(chatID int64, payload string) {
	var holiday domain.Holiday
	switch {
	case payload != "":
		hits := h.catalogUC.ByName(payload)
		if len(hits) == 0 {
			h.reply(chatID, "Праздник не найден.")
			return
		}
		holiday = hits[0]
	default:
		var ok bool
		holiday, ok = h.catalogUC.Random(h.randInt)
		if !ok {
			h.reply(chatID, "Каталог пуст.")
			return
		}
	}
	h.reply(chatID, telegram.FormatFacts(holiday))
}

func (h *Handler) handleFact(chatID int64) {
	for attempt := 0; attempt < 10; attempt++ {
		holiday, ok := h.catalogUC.Random(h.randInt)
		if !ok {
			break
		}
		if len(holiday.FunFacts) == 0 {
			continue
		}
		fact := holiday.FunFacts[h.randInt(len(holiday.FunFacts))]
		h.reply(chatID, fmt.Sprintf("💡 %s\n\n(%s)", fact, holiday.Name))
		return
	}
	h.reply(chatID, "Фактов пока нет.")
}

// handleSetup разбирает аргументы вида:
// /setup 9 America/New_York tone=silly skip_weekends=on wildcard=on
func (h *Handler) handleSetup(ctx context.Context, chatID int64, tenantID string, payload string) {
	if payload == "" {
		h.reply(chatID, "Формат: /setup ЧАС [зона] [tone=silly] [skip_weekends=on] [wildcard=on] [streak_goal=3] [streak_role=звание]")
		return
	}
	params, err := parseSetupArgs(chatID, payload)
	if err != nil {
		h.reply(chatID, err.Error())
		return
	}

	cfg, err := h.tenantUC.RunSetup(ctx, tenantID, params)
	switch {
	case errors.Is(err, tenants.ErrInvalidTime):
		h.reply(chatID, "Час должен быть от 0 до 23, минута — от 0 до 59.")
		return
	case errors.Is(err, tenants.ErrInvalidTimezone):
		h.reply(chatID, "Не удалось распознать часовой пояс. Пример: Europe/Belgrade")
		return
	case errors.Is(err, tenants.ErrUnknownTone):
		h.reply(chatID, fmt.Sprintf("Неизвестный тон. Доступны: %s", joinTones()))
		return
	case errors.Is(err, tenants.ErrPremiumRequired):
		h.replyPremiumPitch(chatID)
		return
	case errors.Is(err, tenants.ErrDestinationLimit):
		h.reply(chatID, "Лимит каналов для вашего тарифа исчерпан. /premium откроет до трёх каналов.")
		return
	case err != nil:
		h.replyError(chatID, err)
		return
	}

	dest, _ := cfg.Destination(chatID)
	h.reply(chatID, fmt.Sprintf("Готово! Праздник дня будет приходить в %02d:%02d (%s).", dest.Hour, dest.Minute, dest.Timezone))
}

func parseSetupArgs(chatID int64, payload string) (tenants.SetupParams, error) {
	fields := strings.Fields(payload)
	params := tenants.SetupParams{DestinationID: chatID}

	hourMinute := strings.SplitN(fields[0], ":", 2)
	hour, err := strconv.Atoi(hourMinute[0])
	if err != nil {
		return params, errors.New("Первым аргументом укажите час доставки, например /setup 9")
	}
	params.Hour = hour
	if len(hourMinute) == 2 {
		minute, err := strconv.Atoi(hourMinute[1])
		if err != nil {
			return params, errors.New("Минуты указываются как 9:30")
		}
		params.Minute = minute
	}

	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found {
			// Позиционный аргумент без = — часовой пояс.
			params.Timezone = field
			continue
		}
		switch strings.ToLower(key) {
		case "tone":
			v := strings.ToLower(value)
			params.Tone = &v
		case "choice":
			idx, err := strconv.Atoi(value)
			if err != nil {
				return params, errors.New("choice должен быть числом")
			}
			params.ChoiceIndex = &idx
		case "skip_weekends":
			v := parseBool(value)
			params.SkipWeekends = &v
		case "branding":
			v := parseBool(value)
			params.Branding = &v
		case "wildcard", "surprise_days":
			v := parseBool(value)
			params.Wildcard = &v
		case "streak_role":
			v := value
			params.StreakRoleID = &v
		case "streak_goal":
			goal, err := strconv.Atoi(value)
			if err != nil {
				return params, errors.New("streak_goal должен быть числом")
			}
			params.StreakGoal = &goal
		case "mention":
			v := value
			params.RoleMentionID = &v
		case "quiet":
			v := parseBool(value)
			params.Quiet = &v
		case "promotions":
			v := parseBool(value)
			params.PromotionsEnabled = &v
		case "no_food":
			v := parseBool(value)
			params.NoFood = &v
		case "no_religious":
			v := parseBool(value)
			params.NoReligious = &v
		case "only_weird":
			v := parseBool(value)
			params.OnlyWeird = &v
		case "only_international":
			v := parseBool(value)
			params.OnlyInternational = &v
		case "safe_mode":
			v := parseBool(value)
			params.SafeMode = &v
		case "blacklist":
			// Слова через запятую; пустое значение очищает список.
			var words []string
			for _, w := range strings.Split(value, ",") {
				if w = strings.TrimSpace(w); w != "" {
					words = append(words, w)
				}
			}
			params.Blacklist = &words
		default:
			return params, fmt.Errorf("Неизвестная опция %q", key)
		}
	}
	return params, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1", "да":
		return true
	default:
		return false
	}
}

func (h *Handler) handleRemove(ctx context.Context, chatID int64, tenantID string) {
	if err := h.tenantUC.RemoveDestination(ctx, tenantID, chatID); err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, "Ежедневная доставка в этот чат выключена. /setup включит её снова.")
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64, tenantID string) {
	status, err := h.tenantUC.GetStatus(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	cfg := status.Config

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Тариф: %s\n", status.Plan.Name))
	if status.Tier == domain.TierTrial && cfg.Entitlement.TrialEndsAt != nil {
		b.WriteString(fmt.Sprintf("Пробный период до %s\n", cfg.Entitlement.TrialEndsAt.Format("2006-01-02")))
	}
	if len(cfg.Destinations) == 0 {
		b.WriteString("Доставка не настроена — используйте /setup.\n")
	}
	for _, dest := range cfg.Destinations {
		b.WriteString(fmt.Sprintf("Доставка: %02d:%02d (%s)", dest.Hour, dest.Minute, dest.Timezone))
		if dest.SkipWeekends {
			b.WriteString(", без выходных")
		}
		b.WriteString("\n")
	}
	if cfg.Tone != "" {
		b.WriteString(fmt.Sprintf("Тон: %s\n", cfg.Tone))
	}
	if cfg.Wildcard.Enabled {
		b.WriteString("Сюрприз-дни: включены\n")
	}
	if len(cfg.Filters.AllowedCategories) > 0 {
		b.WriteString(fmt.Sprintf("Категории: %s\n", strings.Join(cfg.Filters.AllowedCategories, ", ")))
	}
	if cfg.Filters.ExcludeSensitive {
		b.WriteString("Чувствительные темы исключены\n")
	}
	if cfg.StreakGoal > 0 {
		b.WriteString(fmt.Sprintf("Цель страйка: %d дней\n", cfg.StreakGoal))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleStreak(ctx context.Context, chatID int64, tenantID string) {
	status, err := h.tenantUC.GetStatus(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	s := status.Config.Streak
	if s.Count == 0 {
		h.reply(chatID, "Страйк пока не начат: отреагируйте на сегодняшний пост!")
		return
	}
	text := fmt.Sprintf("🔥 Страйк чата: %d дней подряд (рекорд — %d).", s.Count, s.Best)
	if goal := status.Config.StreakGoal; goal > 0 && s.Count < goal {
		text += fmt.Sprintf(" До награды осталось %d.", goal-s.Count)
	}
	h.reply(chatID, text)
}

func (h *Handler) handleCategories(chatID int64) {
	cats := rules.KnownCategories()
	sort.Strings(cats)
	h.reply(chatID, "Доступные категории:\n"+strings.Join(cats, ", ")+"\n\nНастройка: /setcategories food, weird")
}

func (h *Handler) handleSetCategories(ctx context.Context, chatID int64, tenantID string, payload string) {
	var categories []string
	if payload != "" {
		categories = strings.Split(payload, ",")
	}
	err := h.tenantUC.SetCategories(ctx, tenantID, categories)
	switch {
	case errors.Is(err, tenants.ErrUnknownCategory):
		h.reply(chatID, fmt.Sprintf("%v. Список категорий — /categories", err))
	case errors.Is(err, tenants.ErrPremiumRequired):
		h.replyPremiumPitch(chatID)
	case err != nil:
		h.replyError(chatID, err)
	case len(categories) == 0:
		h.reply(chatID, "Ограничение по категориям снято.")
	default:
		h.reply(chatID, "Категории сохранены.")
	}
}

func (h *Handler) handleExcludeSensitive(ctx context.Context, chatID int64, tenantID string, payload string) {
	on := parseBool(payload)
	if err := h.tenantUC.SetExcludeSensitive(ctx, tenantID, on); err != nil {
		h.replyError(chatID, err)
		return
	}
	if on {
		h.reply(chatID, "Чувствительные темы исключены из выборки.")
	} else {
		h.reply(chatID, "Чувствительные темы снова разрешены.")
	}
}

func (h *Handler) handleTrial(ctx context.Context, msg *tgbotapi.Message) {
	tenantID := strconv.FormatInt(msg.Chat.ID, 10)
	var actorID int64
	if msg.From != nil {
		actorID = msg.From.ID
	}
	cfg, err := h.entitlementUC.StartTrial(ctx, tenantID, actorID)
	switch {
	case errors.Is(err, entitlement.ErrTrialAlreadyRedeemed):
		h.reply(msg.Chat.ID, "Пробный период уже был использован в этом чате. /premium — полный доступ.")
		return
	case errors.Is(err, entitlement.ErrAlreadyEntitled):
		h.reply(msg.Chat.ID, "Премиум уже активен.")
		return
	case err != nil:
		h.replyError(msg.Chat.ID, err)
		return
	}
	metrics.IncTrialStarted()
	until := ""
	if cfg.Entitlement.TrialEndsAt != nil {
		until = cfg.Entitlement.TrialEndsAt.Format("2006-01-02")
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("🎁 Пробный премиум активен до %s. Попробуйте tone, wildcard и /upcoming!", until))
}

func (h *Handler) handleUpgrade(ctx context.Context, msg *tgbotapi.Message) {
	tenantID := strconv.FormatInt(msg.Chat.ID, 10)
	var actorID int64
	if msg.From != nil {
		actorID = msg.From.ID
	}
	link, err := h.billing.CreateCheckoutSession(ctx, tenantID, actorID)
	if err != nil {
		h.log.Error().Err(err).Str("tenant", tenantID).Msg("bot: создание сессии оплаты")
		h.reply(msg.Chat.ID, "Не удалось создать ссылку на оплату. Попробуйте позже.")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("💎 Оформить премиум: %s", link))
}

func (h *Handler) handleOverride(ctx context.Context, chatID int64, tenantID, payload string, op func(context.Context, string, string) error, success string) {
	holidayID := strings.TrimSpace(payload)
	if holidayID == "" {
		h.reply(chatID, "Укажите идентификатор праздника. Его можно найти через /search.")
		return
	}
	err := op(ctx, tenantID, holidayID)
	switch {
	case errors.Is(err, tenants.ErrPremiumRequired):
		h.replyPremiumPitch(chatID)
	case err != nil:
		h.replyError(chatID, err)
	default:
		h.reply(chatID, success)
	}
}

func (h *Handler) handleOverrides(ctx context.Context, chatID int64, tenantID string) {
	blocked, forced, err := h.tenantUC.Overrides(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if len(blocked) == 0 && len(forced) == 0 {
		h.reply(chatID, "Ручных списков нет.")
		return
	}
	var b strings.Builder
	if len(blocked) > 0 {
		b.WriteString("🚫 Заблокированы: " + strings.Join(blocked, ", ") + "\n")
	}
	if len(forced) > 0 {
		b.WriteString("📌 Принудительно включены: " + strings.Join(forced, ", ") + "\n")
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleWhy(ctx context.Context, chatID int64, tenantID string) {
	explanations, err := h.tenantUC.WhyToday(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if len(explanations) == 0 {
		h.reply(chatID, "На сегодня праздников в каталоге нет.")
		return
	}
	var b strings.Builder
	b.WriteString("Сегодняшние кандидаты:\n")
	for _, e := range explanations {
		verdict := "✅ проходит"
		if e.Reason != "" {
			verdict = "❌ " + e.Reason
		}
		b.WriteString(fmt.Sprintf("• %s — %s\n", e.Holiday.Name, verdict))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleAnalytics(ctx context.Context, chatID int64, tenantID string) {
	status, err := h.tenantUC.GetStatus(ctx, tenantID)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	state := status.Config.Analytics
	if len(state.History) == 0 {
		h.reply(chatID, "Статистики пока нет: дождитесь первых постов.")
		return
	}
	posts := 0
	for _, n := range state.PostsByDestination {
		posts += n
	}
	reactions := 0
	for _, n := range state.ReactionsByDestination {
		reactions += n
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 Постов: %d, реакций: %d\n", posts, reactions))
	if status.TrendOK {
		arrow := "➡️"
		if status.Trend > 1.05 {
			arrow = "📈"
		} else if status.Trend < 0.95 {
			arrow = "📉"
		}
		b.WriteString(fmt.Sprintf("%s Тренд вовлечённости за неделю: %.0f%%\n", arrow, status.Trend*100))
	}
	if top := topHoliday(state); top != "" {
		b.WriteString(fmt.Sprintf("🏆 Больше всего реакций: %s\n", top))
	}
	h.reply(chatID, b.String())
}

func topHoliday(state domain.AnalyticsState) string {
	best := ""
	bestCount := 0
	ids := make([]string, 0, len(state.ReactionsByHoliday))
	for id := range state.ReactionsByHoliday {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if state.ReactionsByHoliday[id] > bestCount {
			best, bestCount = id, state.ReactionsByHoliday[id]
		}
	}
	return best
}

func (h *Handler) handleUpcoming(ctx context.Context, chatID int64, tenantID, command, payload string) {
	days := 7
	if n, err := strconv.Atoi(strings.TrimSpace(payload)); err == nil {
		days = n
	}
	// /week ограничен неделей-двумя, /upcoming режется тарифом.
	if command == "week" {
		if days < 3 {
			days = 3
		}
		if days > 14 {
			days = 14
		}
	}
	entries, err := h.tenantUC.Upcoming(ctx, tenantID, days)
	switch {
	case errors.Is(err, tenants.ErrPremiumRequired):
		h.replyPremiumPitch(chatID)
		return
	case err != nil:
		h.replyError(chatID, err)
		return
	}
	if len(entries) == 0 {
		h.reply(chatID, "Впереди пока пусто.")
		return
	}
	var b strings.Builder
	b.WriteString("📅 Ближайшие праздники:\n")
	for _, entry := range entries {
		b.WriteString(fmt.Sprintf("• %s — %s\n", catalog.PrettyDate(entry.DateKey), entry.Holiday.Name))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handlePromo(ctx context.Context, chatID int64, tenantID string, kind domain.PromptKind, text string) {
	ok, err := h.tenantUC.MaybeShowPromo(ctx, tenantID, kind)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if !ok {
		h.reply(chatID, "Эта подсказка недавно уже показывалась — спасибо, что помните о нас!")
		return
	}
	h.reply(chatID, text)
}

func (h *Handler) isAdmin(msg *tgbotapi.Message) bool {
	if msg.From == nil {
		return false
	}
	_, ok := h.adminIDs[msg.From.ID]
	return ok
}

func (h *Handler) handleGrant(ctx context.Context, msg *tgbotapi.Message, payload string, grant bool) {
	if !h.isAdmin(msg) {
		h.reply(msg.Chat.ID, "Команда доступна только администраторам бота.")
		return
	}
	tenantID := strings.TrimSpace(payload)
	if tenantID == "" {
		tenantID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	var err error
	if grant {
		err = h.entitlementUC.Grant(ctx, tenantID)
	} else {
		err = h.entitlementUC.Revoke(ctx, tenantID)
	}
	if err != nil {
		h.replyError(msg.Chat.ID, err)
		return
	}
	if grant {
		h.reply(msg.Chat.ID, fmt.Sprintf("Премиум выдан тенанту %s.", tenantID))
	} else {
		h.reply(msg.Chat.ID, fmt.Sprintf("Премиум отозван у тенанта %s.", tenantID))
	}
}

func (h *Handler) handleInstallCount(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg) {
		h.reply(msg.Chat.ID, "Команда доступна только администраторам бота.")
		return
	}
	count, err := h.installs.InstallCount(ctx)
	if err != nil {
		h.replyError(msg.Chat.ID, err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("Бот установлен в %d чатах.", count))
}

func (h *Handler) replyPremiumPitch(chatID int64) {
	h.reply(chatID, "Эта возможность доступна на премиуме. /trial — 7 дней бесплатно, /premium — полный доступ.")
}

func (h *Handler) replyError(chatID int64, err error) {
	h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: ошибка обработки команды")
	h.reply(chatID, "Что-то пошло не так. Попробуйте позже.")
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func joinTones() string {
	tones := selection.KnownTones()
	parts := make([]string, 0, len(tones))
	for _, t := range tones {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

func (h *Handler) buildStartMessage() string {
	lines := []string{
		"👋 Привет! Я присылаю «праздник дня» в ваш чат каждое утро.",
		"",
		"Быстрый старт:",
		"1. /setup 9 Europe/Belgrade — доставка в 09:00 по вашему поясу.",
		"2. /today — посмотреть, что будет в посте.",
		"3. /trial — попробовать премиум на 7 дней.",
		"",
		"Полный список команд — /help.",
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) buildHelpMessage() string {
	sections := []string{
		"📖 Команды:",
		"",
		"Праздники:",
		"• /today — праздник дня с учётом ваших фильтров.",
		"• /tomorrow — что будет завтра (премиум).",
		"• /date 07-04 — праздник на дату.",
		"• /search pizza — поиск по названию.",
		"• /random, /facts, /fact — случайный праздник и факты.",
		"",
		"Доставка:",
		"• /setup 9 Europe/Belgrade — включить ежедневную доставку.",
		"• /setup 9:30 tone=silly skip_weekends=on wildcard=on — опции премиума.",
		"• /remove — выключить доставку, /status — текущие настройки.",
		"",
		"Фильтры:",
		"• /categories, /setcategories food, weird — ограничить категории.",
		"• /setup 9 no_food=on safe_mode=on blacklist=casino,bets — фильтры слов (премиум).",
		"• /excludesensitive on — убрать чувствительные темы.",
		"• /block id, /force id, /overrides, /why — ручное управление.",
		"",
		"Вовлечённость:",
		"• /streak — серия дней с реакциями, /analytics — статистика чата.",
		"• /week, /upcoming 14 — афиша праздников (премиум).",
		"",
		"Тариф:",
		"• /trial — пробный премиум, /premium — оформить подписку.",
	}
	return strings.Join(sections, "\n")
}
