package domain

const (
	// MinNotifyStock и MaxNotifyStock ограничивают остаток, при котором имеет смысл уведомлять.
	MinNotifyStock = 1
	MaxNotifyStock = 50
)

// ThresholdRule — диапазон коэффициента [RatioMin, RatioMax), тег подавления и уровень уведомления.
type ThresholdRule struct {
	RatioMin float64
	RatioMax float64
	Tag      NotificationStatus
	Tier     int
}

func (r ThresholdRule) matches(ratio float64) bool {
	return r.RatioMin <= ratio && ratio < r.RatioMax
}

// ThresholdLadder — упорядоченные правила по статусам товара; первое совпадение побеждает.
type ThresholdLadder map[ProductStatus][]ThresholdRule

// DefaultThresholdLadder возвращает пороги по умолчанию.
// Для ordinary нет уровня [3, 6.2).
func DefaultThresholdLadder() ThresholdLadder {
	common := []ThresholdRule{
		{RatioMin: 12.2, RatioMax: 1000, Tag: NotificationStatusSent12, Tier: 3},
		{RatioMin: 6.2, RatioMax: 12.2, Tag: NotificationStatusSent6, Tier: 2},
	}
	fresh := append(append([]ThresholdRule(nil), common...),
		ThresholdRule{RatioMin: 3, RatioMax: 6.2, Tag: NotificationStatusSent3, Tier: 1},
	)

	return ThresholdLadder{
		ProductStatusOrdinary:    append([]ThresholdRule(nil), common...),
		ProductStatusNew:         fresh,
		ProductStatusAbsoluteNew: append([]ThresholdRule(nil), fresh...),
	}
}

// SkipReason объясняет, почему уведомление не отправлено.
type SkipReason string

const (
	SkipReasonNone             SkipReason = ""
	SkipReasonStockOutOfRange  SkipReason = "stock_out_of_range"
	SkipReasonNoLadder         SkipReason = "status_without_ladder"
	SkipReasonNoTier           SkipReason = "no_tier"
	SkipReasonAlreadyEscalated SkipReason = "already_escalated"
)

// Decision — результат оценки порогов для одного товара.
type Decision struct {
	Fire   bool
	Reason SkipReason
	Ratio  float64
	Rule   ThresholdRule
	// Состояние эскалации после оценки (обновлено только при Fire).
	Notification Notification
	// Alert заполнен только при Fire.
	Alert LowStockNotification
}

// ThresholdEngine сопоставляет коэффициент оборачиваемости с уровнем уведомления.
type ThresholdEngine struct {
	ladder ThresholdLadder
}

// NewThresholdEngine создаёт движок; nil-лестница заменяется порогами по умолчанию.
func NewThresholdEngine(ladder ThresholdLadder) *ThresholdEngine {
	if ladder == nil {
		ladder = DefaultThresholdLadder()
	}
	return &ThresholdEngine{ladder: ladder}
}

// Ratio вычисляет коэффициент для статуса товара:
// Для ordinary это продажи за период / остаток, для new и absolute_new остаток до пополнения / остаток.
func Ratio(p *Product, report SalesAvailabilityReport) (float64, bool) {
	stock := p.Stock()
	if stock <= 0 {
		return 0, false
	}
	switch p.Status {
	case ProductStatusOrdinary:
		return float64(report.SalesQuantity) / float64(stock), true
	case ProductStatusNew, ProductStatusAbsoluteNew:
		return float64(p.PreReplenishmentInventory) / float64(stock), true
	default:
		return 0, false
	}
}

// Evaluate решает, нужно ли отправить уведомление. Уведомление отправляется только
// при эскалации тега; текущее состояние n при этом не изменяется, новое возвращается в Decision.
func (e *ThresholdEngine) Evaluate(n Notification, p *Product, report SalesAvailabilityReport) Decision {
	decision := Decision{Notification: n}

	stock := p.Stock()
	if stock < MinNotifyStock || stock > MaxNotifyStock {
		decision.Reason = SkipReasonStockOutOfRange
		return decision
	}

	rules, ok := e.ladder[p.Status]
	if !ok || len(rules) == 0 {
		decision.Reason = SkipReasonNoLadder
		return decision
	}
	ratio, ok := Ratio(p, report)
	if !ok {
		decision.Reason = SkipReasonNoLadder
		return decision
	}
	decision.Ratio = ratio

	for _, rule := range rules {
		if !rule.matches(ratio) {
			continue
		}
		decision.Rule = rule
		if !n.CanEscalateTo(rule.Tag) {
			decision.Reason = SkipReasonAlreadyEscalated
			return decision
		}

		decision.Fire = true
		decision.Notification.Status = rule.Tag
		decision.Alert = LowStockNotification{
			Seller:             p.Seller,
			Name:               p.Name,
			VendorCode:         p.Sku.VendorCode,
			SKU:                p.Sku.ExternalSKU,
			Marketplace:        string(p.Sku.MarketplaceCode),
			URL:                p.URL,
			SalesForPeriod:     report.SalesQuantity,
			StockSum:           stock,
			StockFBO:           p.StockFBO,
			StockFBS:           p.StockFBS,
			StatusProduct:      string(p.Status),
			StatusNotification: rule.Tier,
			Ratio:              ratio,
		}
		return decision
	}

	decision.Reason = SkipReasonNoTier
	return decision
}
