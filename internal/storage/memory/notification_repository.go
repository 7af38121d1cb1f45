package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

type notificationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Notification
}

// NewNotificationRepository возвращает in-memory хранилище состояния эскалации.
func NewNotificationRepository() domain.NotificationRepository {
	return &notificationRepositoryInMemory{
		items: make(map[string]domain.Notification),
	}
}

// Get возвращает сохранённое состояние или новое со статусом none.
func (r *notificationRepositoryInMemory) Get(_ context.Context, seller, sku string) (domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.items[productKey(seller, sku)]
	if !ok {
		return domain.NewNotification(seller, sku), nil
	}
	return n, nil
}

// Save сохраняет состояние. Понижение статуса игнорируется.
func (r *notificationRepositoryInMemory) Save(_ context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Seller) == "" {
		return domain.ErrSellerRequired
	}
	if strings.TrimSpace(n.SKU) == "" {
		return domain.ErrSKURequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := productKey(n.Seller, n.SKU)
	if current, ok := r.items[key]; ok && !current.CanEscalateTo(n.Status) && current.Status != n.Status {
		return nil
	}
	r.items[key] = n
	return nil
}
