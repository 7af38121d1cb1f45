package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора товара при слиянии продаж.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка отсутствующего SKU у товара или уведомления.
	ErrSKURequired = errors.New("sku is required")
	// Ошибка отсутствующего продавца.
	ErrSellerRequired = errors.New("seller is required")
	// Ошибка отрицательного количества проданных единиц.
	ErrSaleQuantityNegative = errors.New("sale quantity must be non-negative")
	// Ошибка отрицательного остатка FBO/FBS.
	ErrStockNegative = errors.New("stock must be non-negative")
	// Ошибка некорректного окна расчёта доступности.
	ErrWindowInvalid = errors.New("availability window must be positive")
	// ErrProductNotFound возвращается, если товар не найден в репозитории.
	ErrProductNotFound = errors.New("product not found")
	// Ошибка публикации события во внешнюю шину.
	ErrPublish = errors.New("event publish failed")
)

// IsNotFound проверяет, означает ли ошибка отсутствие товара в хранилище.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}
