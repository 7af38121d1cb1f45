package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

// SalesHistory отдаёт продажи, уже накопленные в таблице product_sales.
// Используется вместо аналитики маркетплейса при повторных прогонах без сети.
type SalesHistory struct {
	db *sql.DB
}

var _ domain.SalesSource = (*SalesHistory)(nil)

func NewSalesHistory(store *Store) *SalesHistory {
	return &SalesHistory{db: store.db}
}

// DailySales возвращает продажи продавца за дни [from, to] включительно.
func (h *SalesHistory) DailySales(ctx context.Context, seller string, from, to time.Time) (map[string][]domain.Sale, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	return querySales(opCtx, h.db, `
		SELECT sku, sale_date, quantity, in_stock
		FROM product_sales
		WHERE seller = $1 AND sale_date BETWEEN $2 AND $3
		ORDER BY sku, sale_date DESC
	`, seller, domain.Day(from), domain.Day(to))
}
