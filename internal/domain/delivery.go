package domain

import "errors"

var (
	// ErrDeliveryPermission означает, что канал больше недоступен боту.
	// Такой канал вычищается из конфигурации и не перевзводится.
	ErrDeliveryPermission = errors.New("доставка запрещена: канал недоступен")

	// ErrDeliveryRateLimited означает временное ограничение частоты запросов.
	ErrDeliveryRateLimited = errors.New("доставка отклонена: превышен лимит запросов")

	// ErrDeliveryTransient означает прочую временную ошибку сети или платформы.
	ErrDeliveryTransient = errors.New("временная ошибка доставки")
)

// IsPermanentDeliveryError сообщает, нужно ли удалить канал доставки.
func IsPermanentDeliveryError(err error) bool {
	return errors.Is(err, ErrDeliveryPermission)
}
