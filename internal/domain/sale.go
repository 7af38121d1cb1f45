package domain

import "time"

// Sale описывает продажи товара за один календарный день.
type Sale struct {
	// Количество проданных единиц (>= 0).
	Quantity int
	// День продажи, усечённый до полуночи UTC.
	Date time.Time
	// Был ли товар в наличии в этот день.
	InStock bool
}

// NewSale создаёт запись о продажах, нормализуя дату до дня.
func NewSale(date time.Time, quantity int, inStock bool) (Sale, error) {
	if quantity < 0 {
		return Sale{}, ErrSaleQuantityNegative
	}
	return Sale{Quantity: quantity, Date: Day(date), InStock: inStock}, nil
}

// Day усекает момент времени до полуночи UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// saleKey задаёт ключ слияния продаж внутри агрегата.
type saleKey struct {
	sku  string
	date int64
}

func keyOf(sku Sku, date time.Time) saleKey {
	return saleKey{sku: sku.Key(), date: Day(date).Unix()}
}
