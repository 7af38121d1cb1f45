package domain

import (
	"time"

	"github.com/google/uuid"
)

// SearchPromotionObjectID — идентификатор рекламного объекта для SKU из продвижения в поиске.
const SearchPromotionObjectID = "search promotion"

// Campaign описывает активную рекламную кампанию продавца.
type Campaign struct {
	ID    string
	Title string
	State string
}

// CampaignProduct — рекламируемый SKU и идентификатор рекламного объекта (кампании или поиска).
type CampaignProduct struct {
	SKU                 string `json:"sku"`
	AdvertisingObjectID string `json:"adv_id"`
}

// IsSearchPromotion сообщает, пришёл ли SKU из продвижения в поиске.
func (c CampaignProduct) IsSearchPromotion() bool {
	return c.AdvertisingObjectID == SearchPromotionObjectID
}

// ZeroStockAdvertisedEvent возникает, когда товар рекламируется, но его нет в наличии.
type ZeroStockAdvertisedEvent struct {
	EventID             string    `json:"event_id"`
	SKU                 string    `json:"sku"`
	Seller              string    `json:"seller"`
	LegalEntity         string    `json:"legal_entity"`
	AdvertisingObjectID string    `json:"adv_id"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// MatchZeroStockAdvertised пересекает товары с нулевым остатком с рекламируемыми SKU.
// Одно событие на SKU за проход; при нескольких источниках берётся первый в порядке advertised.
func MatchZeroStockAdvertised(seller, legalEntity string, products []ProductSnapshot, advertised []CampaignProduct, now time.Time) []ZeroStockAdvertisedEvent {
	if len(products) == 0 || len(advertised) == 0 {
		return nil
	}

	byKey := make(map[string]CampaignProduct, len(advertised))
	for _, cp := range advertised {
		if _, ok := byKey[cp.SKU]; !ok {
			byKey[cp.SKU] = cp
		}
	}

	seen := make(map[string]struct{})
	var events []ZeroStockAdvertisedEvent
	for _, p := range products {
		if p.Stock() != 0 {
			continue
		}
		sku := p.Sku.ExternalSKU
		cp, ok := byKey[sku]
		if !ok {
			continue
		}
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}

		events = append(events, ZeroStockAdvertisedEvent{
			EventID:             uuid.NewString(),
			SKU:                 sku,
			Seller:              seller,
			LegalEntity:         legalEntity,
			AdvertisingObjectID: cp.AdvertisingObjectID,
			OccurredAt:          now.UTC(),
		})
	}
	return events
}
