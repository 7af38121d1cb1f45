package domain

import (
	"context"
	"time"
)

// Clock возвращает текущее время; подменяется в тестах.
type Clock func() time.Time

// Catalog отдаёт товары продавца с остатками.
type Catalog interface {
	ListProducts(ctx context.Context, seller string) ([]ProductSnapshot, error)
}

// CampaignSource отдаёт рекламные кампании и рекламируемые SKU продавца.
type CampaignSource interface {
	// RunningCampaigns возвращает активные кампании с рекламой товаров.
	RunningCampaigns(ctx context.Context, seller string) ([]Campaign, error)
	// CampaignProducts возвращает SKU, рекламируемые в кампании.
	CampaignProducts(ctx context.Context, seller, campaignID string) ([]string, error)
	// SearchPromotedProducts возвращает SKU из продвижения в поиске.
	SearchPromotedProducts(ctx context.Context, seller string) ([]string, error)
}

// SalesSource отдаёт дневную историю продаж по SKU.
type SalesSource interface {
	DailySales(ctx context.Context, seller string, from, to time.Time) (map[string][]Sale, error)
}

// ProductRepository хранит агрегаты товаров между проходами.
type ProductRepository interface {
	// Get возвращает ErrProductNotFound, если товар ещё не сохранялся.
	Get(ctx context.Context, seller, sku string) (*Product, error)
	Save(ctx context.Context, product *Product) error
}

// NotificationRepository хранит состояние эскалации уведомлений по ключу продавец+SKU.
type NotificationRepository interface {
	// Get возвращает состояние none, если уведомлений ещё не было.
	Get(ctx context.Context, seller, sku string) (Notification, error)
	Save(ctx context.Context, notification Notification) error
}

// EventPublisher публикует события во внешнюю шину.
type EventPublisher interface {
	PublishZeroStockAdvertised(ctx context.Context, event ZeroStockAdvertisedEvent) error
	PublishLowStock(ctx context.Context, notification LowStockNotification) error
}
