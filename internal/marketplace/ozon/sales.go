package ozon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
	"github.com/vladislavdragonenkov/stockwatch/internal/paginator"
)

const analyticsDateLayout = "2006-01-02"

type analyticsRequest struct {
	DateFrom  string   `json:"date_from"`
	DateTo    string   `json:"date_to"`
	Metrics   []string `json:"metrics"`
	Dimension []string `json:"dimension"`
	Limit     int      `json:"limit"`
	Offset    int      `json:"offset"`
}

type analyticsDimension struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type analyticsResponse struct {
	Result struct {
		Data []struct {
			Dimensions []analyticsDimension `json:"dimensions"`
			Metrics    []float64            `json:"metrics"`
		} `json:"data"`
	} `json:"result"`
}

type salesRow struct {
	sku  string
	sale domain.Sale
}

// DailySales возвращает заказанные единицы по SKU и дням из /v1/analytics/data.
// День считается днём в наличии, если в нём были заказы.
func (c *Client) DailySales(ctx context.Context, seller string, from, to time.Time) (map[string][]domain.Sale, error) {
	creds, ok := c.sellerCredentials(seller)
	if !ok {
		return map[string][]domain.Sale{}, nil
	}
	headers := c.sellerHeaders(creds)
	dateFrom := domain.Day(from).Format(analyticsDateLayout)
	dateTo := domain.Day(to).Format(analyticsDateLayout)

	// Total хранит число строк ответа: короткой считается страница до отбрасывания битых строк.
	shortPage := func(p paginator.OffsetPage[salesRow], pageSize int) bool {
		return p.Total < pageSize
	}

	rows, err := paginator.Offset(ctx, c.pause(), analyticsLimit, shortPage,
		func(ctx context.Context, page, pageSize int) (paginator.OffsetPage[salesRow], error) {
			var resp analyticsResponse
			if err := c.call(ctx, gateway.Request{
				Method:  http.MethodPost,
				URL:     c.cfg.SellerURL + "/v1/analytics/data",
				Headers: headers,
				Body: analyticsRequest{
					DateFrom:  dateFrom,
					DateTo:    dateTo,
					Metrics:   []string{"ordered_units"},
					Dimension: []string{"sku", "day"},
					Limit:     pageSize,
					Offset:    (page - 1) * pageSize,
				},
			}, &resp); err != nil {
				return paginator.OffsetPage[salesRow]{}, err
			}

			items := make([]salesRow, 0, len(resp.Result.Data))
			for _, d := range resp.Result.Data {
				row, err := parseSalesRow(d.Dimensions, d.Metrics)
				if err != nil {
					c.logger.WithError(err).WithField("seller", seller).Warn("skipping malformed analytics row")
					continue
				}
				items = append(items, row)
			}
			return paginator.OffsetPage[salesRow]{Items: items, Total: len(resp.Result.Data)}, nil
		})

	out := make(map[string][]domain.Sale)
	for _, r := range rows {
		out[r.sku] = append(out[r.sku], r.sale)
	}
	if err != nil {
		return out, fmt.Errorf("daily sales: %w", err)
	}
	return out, nil
}

func parseSalesRow(dims []analyticsDimension, metrics []float64) (salesRow, error) {
	if len(dims) < 2 || len(metrics) < 1 || dims[0].ID == "" {
		return salesRow{}, errors.New("analytics row: missing dimensions or metrics")
	}
	day, err := time.Parse(analyticsDateLayout, dims[1].ID)
	if err != nil {
		return salesRow{}, fmt.Errorf("analytics row: parse day %q: %w", dims[1].ID, err)
	}
	qty := int(math.Round(metrics[0]))
	sale, err := domain.NewSale(day, qty, qty > 0)
	if err != nil {
		return salesRow{}, err
	}
	return salesRow{sku: dims[0].ID, sale: sale}, nil
}
