package domain

import "time"

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
	dateKeyLayout  = "01-02"
)

// DayKey возвращает ключ календарного дня в локальном времени t.
func DayKey(t time.Time) string {
	return t.Format(dayKeyLayout)
}

// PrevDayKey возвращает ключ предыдущего дня. Пустая строка при некорректном ключе.
func PrevDayKey(key string) string {
	t, err := time.Parse(dayKeyLayout, key)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayKeyLayout)
}

// MonthKey возвращает ключ месяца YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// DateKey возвращает ключ каталога MM-DD.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}
