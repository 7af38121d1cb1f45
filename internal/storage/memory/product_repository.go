package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]*domain.Product
}

// NewProductRepository возвращает in-memory репозиторий агрегатов товаров.
// Состояние живёт в пределах процесса.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]*domain.Product),
	}
}

func productKey(seller, sku string) string {
	return seller + "/" + sku
}

// Get возвращает копию агрегата или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, seller, sku string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[productKey(seller, sku)]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return product.Clone(), nil
}

// Save сохраняет копию агрегата, перезаписывая предыдущую.
func (r *productRepositoryInMemory) Save(_ context.Context, product *domain.Product) error {
	if product == nil || strings.TrimSpace(product.ID) == "" {
		return domain.ErrProductIDRequired
	}
	if strings.TrimSpace(product.Seller) == "" {
		return domain.ErrSellerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[productKey(product.Seller, product.Sku.Key())] = product.Clone()
	return nil
}
