package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

type notificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создаёт хранилище состояния эскалации в PostgreSQL.
func NewNotificationRepository(store *Store) domain.NotificationRepository {
	return &notificationRepository{db: store.db}
}

func (r *notificationRepository) Get(ctx context.Context, seller, sku string) (domain.Notification, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	n := domain.NewNotification(seller, sku)
	var status string
	err := r.db.QueryRowContext(opCtx, `
		SELECT status, updated_at
		FROM notification_states
		WHERE seller = $1 AND sku = $2
	`, n.Seller, n.SKU).Scan(&status, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, nil
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("load notification %s/%s: %w", seller, sku, err)
	}
	n.Status = domain.NotificationStatus(status)
	return n, nil
}

// Save повышает статус. Строка с более высоким рангом не перезаписывается.
func (r *notificationRepository) Save(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Seller) == "" {
		return domain.ErrSellerRequired
	}
	if strings.TrimSpace(n.SKU) == "" {
		return domain.ErrSKURequired
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	_, err := r.db.ExecContext(opCtx, `
		INSERT INTO notification_states (seller, sku, status, status_rank, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (seller, sku) DO UPDATE SET
			status = EXCLUDED.status,
			status_rank = EXCLUDED.status_rank,
			updated_at = EXCLUDED.updated_at
		WHERE notification_states.status_rank <= EXCLUDED.status_rank
	`, n.Seller, n.SKU, string(n.Status), n.Status.Rank(), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save notification %s/%s: %w", n.Seller, n.SKU, err)
	}
	return nil
}
