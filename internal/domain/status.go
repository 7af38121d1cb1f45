package domain

const (
	recentSalesDepth = 15
	monthSalesDepth  = 30
)

// UpdateStatus пересчитывает стадию жизненного цикла по истории наличия.
// Переходы: default -> {absolute_new, new, ordinary}, ordinary -> new,
// new/absolute_new -> ordinary. В остальных случаях статус не меняется.
func (p *Product) UpdateStatus() ProductStatus {
	sales := p.Sales()

	switch p.Status {
	case ProductStatusDefault, "":
		switch {
		case countInStock(sales) == 0:
			p.Status = ProductStatusAbsoluteNew
		case countInStock(head(sales, recentSalesDepth)) == 0:
			p.Status = ProductStatusNew
		default:
			p.Status = ProductStatusOrdinary
		}
	case ProductStatusOrdinary:
		if countInStock(head(sales, recentSalesDepth)) == 0 {
			p.Status = ProductStatusNew
		}
	case ProductStatusNew, ProductStatusAbsoluteNew:
		month := countInStock(head(sales, monthSalesDepth))
		recent := countInStock(head(sales, recentSalesDepth))
		if month > recentSalesDepth && recent > 0 {
			p.Status = ProductStatusOrdinary
		}
	}

	return p.Status
}

func head(sales []Sale, n int) []Sale {
	if len(sales) < n {
		return sales
	}
	return sales[:n]
}

func countInStock(sales []Sale) int {
	n := 0
	for _, s := range sales {
		if s.InStock {
			n++
		}
	}
	return n
}
