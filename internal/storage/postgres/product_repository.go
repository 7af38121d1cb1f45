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

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт репозиторий агрегатов товаров в PostgreSQL.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.db}
}

func (r *productRepository) Get(ctx context.Context, seller, sku string) (*domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	var (
		state       domain.Product
		marketplace string
		status      string
	)
	err := r.db.QueryRowContext(opCtx, `
		SELECT id, vendor_code, marketplace, external_sku, name, url,
		       stock_fbo, stock_fbs, status, pre_replenishment_inventory
		FROM products
		WHERE seller = $1 AND sku = $2
	`, seller, sku).Scan(
		&state.ID,
		&state.Sku.VendorCode,
		&marketplace,
		&state.Sku.ExternalSKU,
		&state.Name,
		&state.URL,
		&state.StockFBO,
		&state.StockFBS,
		&status,
		&state.PreReplenishmentInventory,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s/%s: %w", seller, sku, err)
	}
	state.Seller = seller
	state.Sku.MarketplaceCode = domain.Marketplace(marketplace)
	state.Status = domain.ProductStatus(status)

	sales, err := querySales(opCtx, r.db, `
		SELECT sku, sale_date, quantity, in_stock
		FROM product_sales
		WHERE seller = $1 AND sku = $2
		ORDER BY sale_date DESC
	`, seller, sku)
	if err != nil {
		return nil, err
	}

	return domain.RestoreProduct(state, sales[sku]), nil
}

// Save перезаписывает товар и дописывает продажи по ключу (sku, день) в одной транзакции.
func (r *productRepository) Save(ctx context.Context, product *domain.Product) (err error) {
	if product == nil || strings.TrimSpace(product.ID) == "" {
		return domain.ErrProductIDRequired
	}
	if strings.TrimSpace(product.Seller) == "" {
		return domain.ErrSellerRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(opCtx, nil)
	if err != nil {
		return fmt.Errorf("begin product tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	key := product.Sku.Key()
	if _, err = tx.ExecContext(opCtx, `
		INSERT INTO products (
			seller, sku, id, vendor_code, marketplace, external_sku, name, url,
			stock_fbo, stock_fbs, status, pre_replenishment_inventory, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (seller, sku) DO UPDATE SET
			id = EXCLUDED.id,
			vendor_code = EXCLUDED.vendor_code,
			marketplace = EXCLUDED.marketplace,
			external_sku = EXCLUDED.external_sku,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			stock_fbo = EXCLUDED.stock_fbo,
			stock_fbs = EXCLUDED.stock_fbs,
			status = EXCLUDED.status,
			pre_replenishment_inventory = EXCLUDED.pre_replenishment_inventory,
			updated_at = EXCLUDED.updated_at
	`,
		product.Seller,
		key,
		product.ID,
		product.Sku.VendorCode,
		string(product.Sku.MarketplaceCode),
		product.Sku.ExternalSKU,
		product.Name,
		product.URL,
		product.StockFBO,
		product.StockFBS,
		string(product.Status),
		product.PreReplenishmentInventory,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert product %s/%s: %w", product.Seller, key, err)
	}

	for _, sale := range product.Sales() {
		if _, err = tx.ExecContext(opCtx, `
			INSERT INTO product_sales (seller, sku, sale_date, quantity, in_stock)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (seller, sku, sale_date) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				in_stock = EXCLUDED.in_stock
		`, product.Seller, key, sale.Date, sale.Quantity, sale.InStock); err != nil {
			return fmt.Errorf("upsert sale %s/%s %s: %w", product.Seller, key, sale.Date.Format(time.DateOnly), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit product tx: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// querySales читает строки (sku, sale_date, quantity, in_stock) и группирует их по SKU.
func querySales(ctx context.Context, db rowQuerier, query string, args ...any) (map[string][]domain.Sale, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.Sale)
	for rows.Next() {
		var (
			sku  string
			sale domain.Sale
		)
		if err := rows.Scan(&sku, &sale.Date, &sale.Quantity, &sale.InStock); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.Date = domain.Day(sale.Date)
		out[sku] = append(out[sku], sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return out, nil
}
