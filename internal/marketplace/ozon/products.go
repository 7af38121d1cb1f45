package ozon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
	"github.com/vladislavdragonenkov/stockwatch/internal/paginator"
)

// ProductInfo — карточка товара из /v2/product/info.
type ProductInfo struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	OfferID string     `json:"offer_id"`
	SKU     flexString `json:"sku"`
	FBOSKU  flexString `json:"fbo_sku"`
	Stocks  struct {
		Coming   int `json:"coming"`
		Present  int `json:"present"`
		Reserved int `json:"reserved"`
	} `json:"stocks"`
}

// ExternalSKU возвращает SKU Ozon; для старых карточек берётся fbo_sku.
func (p ProductInfo) ExternalSKU() string {
	if p.SKU != "" && p.SKU != "0" {
		return string(p.SKU)
	}
	if p.FBOSKU != "0" {
		return string(p.FBOSKU)
	}
	return ""
}

// Stock — остатки товара по схемам FBO и FBS.
type Stock struct {
	FBO int
	FBS int
}

type productListRequest struct {
	Filter struct {
		Visibility string `json:"visibility"`
	} `json:"filter"`
	LastID string `json:"last_id"`
	Limit  int    `json:"limit"`
}

type productListResponse struct {
	Result struct {
		Items []struct {
			ProductID int64  `json:"product_id"`
			OfferID   string `json:"offer_id"`
		} `json:"items"`
		LastID string `json:"last_id"`
		Total  int    `json:"total"`
	} `json:"result"`
}

type productInfoResponse struct {
	Result ProductInfo `json:"result"`
}

type stockListResponse struct {
	Result struct {
		Items []struct {
			OfferID string `json:"offer_id"`
			Stocks  []struct {
				Type     string `json:"type"`
				Present  int    `json:"present"`
				Reserved int    `json:"reserved"`
			} `json:"stocks"`
		} `json:"items"`
		LastID  string `json:"last_id"`
		HasNext *bool  `json:"has_next"`
	} `json:"result"`
}

// ListProducts возвращает видимые товары продавца с разбивкой остатков FBO/FBS.
func (c *Client) ListProducts(ctx context.Context, seller string) ([]domain.ProductSnapshot, error) {
	creds, ok := c.sellerCredentials(seller)
	if !ok {
		return nil, nil
	}
	logger := c.logger.WithField("seller", seller)

	offerIDs, err := c.offerIDs(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if len(offerIDs) == 0 {
		return nil, nil
	}

	stocks, err := c.stockLevels(ctx, creds)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("stock levels unavailable, falling back to product info stocks")
	}

	infos, err := c.productInfos(ctx, seller, creds, offerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductSnapshot, 0, len(infos))
	for _, info := range infos {
		sku := info.ExternalSKU()
		if sku == "" {
			logger.WithField("offer_id", info.OfferID).Warn("product without sku, skipping")
			continue
		}
		snap := domain.ProductSnapshot{
			Sku:    domain.NewSku(info.OfferID, domain.MarketplaceOzon, sku),
			Name:   info.Name,
			URL:    ProductURL(sku),
			Seller: seller,
		}
		if st, ok := stocks[info.OfferID]; ok {
			snap.StockFBO = st.FBO
			snap.StockFBS = st.FBS
		} else {
			snap.StockFBO = max(info.Stocks.Present, 0)
		}
		out = append(out, snap)
	}
	logger.WithField("products", len(out)).Debug("products listed")
	return out, nil
}

// ProductURL возвращает ссылку на витрину товара.
func ProductURL(sku string) string {
	return "https://www.ozon.ru/product/" + sku
}

func (c *Client) offerIDs(ctx context.Context, creds config.Credentials) ([]string, error) {
	headers := c.sellerHeaders(creds)
	return paginator.Cursor(ctx, c.pause(), func(ctx context.Context, cursor string) (paginator.CursorPage[string], error) {
		body := productListRequest{LastID: cursor, Limit: productListLimit}
		body.Filter.Visibility = "VISIBLE"

		var resp productListResponse
		if err := c.call(ctx, gateway.Request{
			Method:  http.MethodPost,
			URL:     c.cfg.SellerURL + "/v2/product/list",
			Headers: headers,
			Body:    body,
		}, &resp); err != nil {
			return paginator.CursorPage[string]{}, err
		}

		ids := make([]string, 0, len(resp.Result.Items))
		for _, item := range resp.Result.Items {
			ids = append(ids, item.OfferID)
		}
		return paginator.CursorPage[string]{Items: ids, Next: resp.Result.LastID}, nil
	})
}

// productInfos загружает карточки пачками. Следующая пачка начинается через паузу
// после завершения предыдущей.
func (c *Client) productInfos(ctx context.Context, seller string, creds config.Credentials, offerIDs []string) ([]ProductInfo, error) {
	pause := c.pause()
	size := c.cfg.ProductBatchSize
	found := make([]*ProductInfo, len(offerIDs))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for start := 0; start < len(offerIDs); start += size {
		if start > 0 {
			if err := pause.Sleep(ctx); err != nil {
				return nil, err
			}
		}
		end := min(start+size, len(offerIDs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				info, ok, err := c.productInfo(gctx, creds, offerIDs[i])
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					c.logger.WithError(err).WithFields(log.Fields{
						"seller":   seller,
						"offer_id": offerIDs[i],
					}).Warn("product info failed")
					return nil
				}
				if ok {
					found[i] = &info
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]ProductInfo, 0, len(found))
	for _, info := range found {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out, nil
}

// ProductInfo ищет карточку по артикулу, перебирая варианты написания. Первый найденный побеждает.
func (c *Client) ProductInfo(ctx context.Context, seller, vendorCode string) (ProductInfo, bool, error) {
	creds, ok := c.sellerCredentials(seller)
	if !ok {
		return ProductInfo{}, false, nil
	}
	return c.productInfo(ctx, creds, vendorCode)
}

func (c *Client) productInfo(ctx context.Context, creds config.Credentials, vendorCode string) (ProductInfo, bool, error) {
	for _, code := range Candidates(vendorCode, nil) {
		var resp productInfoResponse
		err := c.call(ctx, gateway.Request{
			Method:  http.MethodPost,
			URL:     c.cfg.SellerURL + "/v2/product/info",
			Headers: c.sellerHeaders(creds),
			Body:    map[string]string{"offer_id": code},
		}, &resp)
		if err != nil {
			if errors.Is(err, paginator.ErrNoData) {
				continue
			}
			return ProductInfo{}, false, err
		}
		if resp.Result.ID == 0 && resp.Result.OfferID == "" {
			continue
		}
		if resp.Result.OfferID == "" {
			resp.Result.OfferID = code
		}
		return resp.Result, true, nil
	}
	return ProductInfo{}, false, nil
}

// StockLevels возвращает остатки FBO/FBS по артикулу продавца.
func (c *Client) StockLevels(ctx context.Context, seller string) (map[string]Stock, error) {
	creds, ok := c.sellerCredentials(seller)
	if !ok {
		return map[string]Stock{}, nil
	}
	return c.stockLevels(ctx, creds)
}

func (c *Client) stockLevels(ctx context.Context, creds config.Credentials) (map[string]Stock, error) {
	type row struct {
		offerID string
		stock   Stock
	}
	headers := c.sellerHeaders(creds)
	rows, err := paginator.Cursor(ctx, c.pause(), func(ctx context.Context, cursor string) (paginator.CursorPage[row], error) {
		body := productListRequest{LastID: cursor, Limit: stockListLimit}
		body.Filter.Visibility = "ALL"

		var resp stockListResponse
		if err := c.call(ctx, gateway.Request{
			Method:  http.MethodPost,
			URL:     c.cfg.SellerURL + "/v3/product/info/stocks",
			Headers: headers,
			Body:    body,
		}, &resp); err != nil {
			return paginator.CursorPage[row]{}, err
		}

		items := make([]row, 0, len(resp.Result.Items))
		for _, item := range resp.Result.Items {
			var st Stock
			for _, s := range item.Stocks {
				switch s.Type {
				case "fbo":
					st.FBO += max(s.Present, 0)
				case "fbs":
					st.FBS += max(s.Present, 0)
				}
			}
			items = append(items, row{offerID: item.OfferID, stock: st})
		}
		return paginator.CursorPage[row]{Items: items, Next: resp.Result.LastID, HasNext: resp.Result.HasNext}, nil
	})

	out := make(map[string]Stock, len(rows))
	for _, r := range rows {
		out[r.offerID] = r.stock
	}
	if err != nil {
		return out, fmt.Errorf("stock levels: %w", err)
	}
	return out, nil
}
