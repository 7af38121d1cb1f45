package domain

import (
	"sort"
	"strings"
)

// ProductStatus описывает стадию жизненного цикла товара.
type ProductStatus string

const (
	// Товар только что появился, статус ещё не вычислялся.
	ProductStatusDefault ProductStatus = "default"
	// Товар давно не был в наличии среди последних продаж.
	ProductStatusNew ProductStatus = "new"
	// Товар ни разу не был в наличии.
	ProductStatusAbsoluteNew ProductStatus = "absolute_new"
	// Товар с регулярной историей наличия.
	ProductStatusOrdinary ProductStatus = "ordinary"
)

// ProductSnapshot — срез данных о товаре, полученный от маркетплейса за один проход.
type ProductSnapshot struct {
	Sku      Sku
	Name     string
	URL      string
	Seller   string
	StockFBO int
	StockFBS int
	Sales    []Sale
}

// Stock возвращает суммарный остаток снимка.
func (s ProductSnapshot) Stock() int {
	return s.StockFBO + s.StockFBS
}

// Product — агрегат товара. Продажи принадлежат только ему и хранятся по ключу (sku, день).
type Product struct {
	ID       string
	Sku      Sku
	Name     string
	URL      string
	Seller   string
	StockFBO int
	StockFBS int
	Status   ProductStatus
	// Остаток, зафиксированный при последнем увеличении стока.
	PreReplenishmentInventory int

	sales map[saleKey]Sale
}

// NewProduct создаёт агрегат при первом наблюдении товара.
// Остаток до пополнения по умолчанию равен текущему остатку.
func NewProduct(id string, snapshot ProductSnapshot) (*Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrProductIDRequired
	}
	if snapshot.Sku.ExternalSKU == "" && snapshot.Sku.VendorCode == "" {
		return nil, ErrSKURequired
	}
	if snapshot.StockFBO < 0 || snapshot.StockFBS < 0 {
		return nil, ErrStockNegative
	}

	p := &Product{
		ID:                        id,
		Sku:                       snapshot.Sku,
		Name:                      snapshot.Name,
		URL:                       snapshot.URL,
		Seller:                    snapshot.Seller,
		StockFBO:                  snapshot.StockFBO,
		StockFBS:                  snapshot.StockFBS,
		Status:                    ProductStatusDefault,
		PreReplenishmentInventory: snapshot.Stock(),
		sales:                     make(map[saleKey]Sale),
	}
	if err := p.MergeSales(snapshot.Sales...); err != nil {
		return nil, err
	}
	return p, nil
}

// Stock возвращает суммарный остаток FBO+FBS.
func (p *Product) Stock() int {
	return p.StockFBO + p.StockFBS
}

// Refresh применяет свежий снимок маркетплейса: имя, остатки и продажи.
// Остаток до пополнения растёт только при увеличении стока.
func (p *Product) Refresh(snapshot ProductSnapshot) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrProductIDRequired
	}
	if snapshot.StockFBO < 0 || snapshot.StockFBS < 0 {
		return ErrStockNegative
	}

	if snapshot.Name != "" {
		p.Name = snapshot.Name
	}
	if snapshot.URL != "" {
		p.URL = snapshot.URL
	}
	if p.Stock() < snapshot.Stock() {
		p.PreReplenishmentInventory = snapshot.Stock()
	}
	p.StockFBO = snapshot.StockFBO
	p.StockFBS = snapshot.StockFBS

	return p.MergeSales(snapshot.Sales...)
}

// MergeSales вставляет или перезаписывает продажи по ключу (sku, день).
// Количество и флаг наличия перезаписываются, а не суммируются.
func (p *Product) MergeSales(sales ...Sale) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrProductIDRequired
	}
	if p.sales == nil {
		p.sales = make(map[saleKey]Sale, len(sales))
	}
	for _, s := range sales {
		if s.Quantity < 0 {
			return ErrSaleQuantityNegative
		}
		s.Date = Day(s.Date)
		p.sales[keyOf(p.Sku, s.Date)] = s
	}
	return nil
}

// Sales возвращает копию продаж, отсортированную от самой свежей к самой старой.
func (p *Product) Sales() []Sale {
	out := make([]Sale, 0, len(p.sales))
	for _, s := range p.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// SalesCount возвращает количество дней с записями о продажах.
func (p *Product) SalesCount() int {
	return len(p.sales)
}

// Clone возвращает глубокую копию агрегата.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	cp.sales = make(map[saleKey]Sale, len(p.sales))
	for k, v := range p.sales {
		cp.sales[k] = v
	}
	return &cp
}

// RestoreProduct собирает агрегат из сохранённого состояния.
func RestoreProduct(state Product, sales []Sale) *Product {
	p := state
	p.sales = make(map[saleKey]Sale, len(sales))
	for _, s := range sales {
		s.Date = Day(s.Date)
		p.sales[keyOf(p.Sku, s.Date)] = s
	}
	if p.Status == "" {
		p.Status = ProductStatusDefault
	}
	return &p
}
