// Package redis хранит состояние эскалации уведомлений в Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

const (
	DefaultKeyPrefix = "stockwatch"
	pingTimeout      = 5 * time.Second
)

// escalateScript записывает статус, только если ранг не ниже сохранённого.
// KEYS[1] = ключ состояния
// ARGV[1] = статус, ARGV[2] = ранг, ARGV[3] = updated_at (RFC3339Nano)
var escalateScript = goredis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], "rank") or "-1")
if current > tonumber(ARGV[2]) then
    return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[1], "rank", ARGV[2], "updated_at", ARGV[3])
return 1
`)

// Options — параметры подключения к Redis.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Connect создаёт клиент и проверяет доступность сервера.
func Connect(ctx context.Context, opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NotificationRepository реализует domain.NotificationRepository поверх hash-ключей Redis.
type NotificationRepository struct {
	client    goredis.UniversalClient
	keyPrefix string
}

var _ domain.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(client goredis.UniversalClient, keyPrefix string) *NotificationRepository {
	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &NotificationRepository{client: client, keyPrefix: keyPrefix}
}

func (r *NotificationRepository) key(seller, sku string) string {
	return r.keyPrefix + ":notification:" + seller + ":" + sku
}

// Get возвращает сохранённое состояние или новое со статусом none.
func (r *NotificationRepository) Get(ctx context.Context, seller, sku string) (domain.Notification, error) {
	n := domain.NewNotification(seller, sku)

	fields, err := r.client.HGetAll(ctx, r.key(n.Seller, n.SKU)).Result()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("load notification %s/%s: %w", n.Seller, n.SKU, err)
	}
	if len(fields) == 0 {
		return n, nil
	}

	n.Status = domain.NotificationStatus(fields["status"])
	if raw := fields["updated_at"]; raw != "" {
		if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return domain.Notification{}, fmt.Errorf("parse notification %s/%s updated_at: %w", n.Seller, n.SKU, err)
		}
	}
	return n, nil
}

// Save повышает статус атомарно. Понижение игнорируется.
func (r *NotificationRepository) Save(ctx context.Context, n domain.Notification) error {
	if strings.TrimSpace(n.Seller) == "" {
		return domain.ErrSellerRequired
	}
	if strings.TrimSpace(n.SKU) == "" {
		return domain.ErrSKURequired
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}

	err := escalateScript.Run(ctx, r.client,
		[]string{r.key(n.Seller, n.SKU)},
		string(n.Status),
		strconv.Itoa(n.Status.Rank()),
		n.UpdatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("save notification %s/%s: %w", n.Seller, n.SKU, err)
	}
	return nil
}
