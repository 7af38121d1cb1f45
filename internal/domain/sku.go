package domain

import "strings"

// Marketplace — код маркетплейса, на котором размещён товар.
type Marketplace string

const (
	MarketplaceOzon         Marketplace = "ozon"
	MarketplaceWildberries  Marketplace = "wb"
	MarketplaceYandexMarket Marketplace = "yandex_market"
)

// Sku описывает идентичность товара на маркетплейсе.
// Значение неизменяемо после создания.
type Sku struct {
	// Внутренний идентификатор, может отсутствовать.
	InternalID string
	// Артикул продавца (offer_id у Ozon).
	VendorCode string
	// Код маркетплейса.
	MarketplaceCode Marketplace
	// SKU, присвоенный маркетплейсом.
	ExternalSKU string
}

// NewSku нормализует пробелы и возвращает SKU.
func NewSku(vendorCode string, marketplace Marketplace, externalSKU string) Sku {
	return Sku{
		VendorCode:      strings.TrimSpace(vendorCode),
		MarketplaceCode: marketplace,
		ExternalSKU:     strings.TrimSpace(externalSKU),
	}
}

// Key возвращает ключ идентичности: ExternalSKU, если задан, иначе пару артикул+маркетплейс.
func (s Sku) Key() string {
	if s.ExternalSKU != "" {
		return s.ExternalSKU
	}
	return string(s.MarketplaceCode) + ":" + s.VendorCode
}

// Same сравнивает идентичность двух SKU.
func (s Sku) Same(other Sku) bool {
	if s.ExternalSKU != "" && other.ExternalSKU != "" {
		return s.ExternalSKU == other.ExternalSKU
	}
	return s.VendorCode == other.VendorCode && s.MarketplaceCode == other.MarketplaceCode
}
