package ozon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
	"github.com/vladislavdragonenkov/stockwatch/internal/paginator"
)

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   flexInt `json:"expires_in"`
}

// performanceTokenSource получает токен client_credentials. Ozon принимает JSON, а не форму,
// поэтому стандартный clientcredentials.Config не подходит.
type performanceTokenSource struct {
	client *Client
	creds  config.Credentials
}

func (s performanceTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.TokenTimeout)
	defer cancel()

	var resp tokenResponse
	if err := s.client.call(ctx, gateway.Request{
		Method: http.MethodPost,
		URL:    s.client.cfg.PerformanceURL + "/api/client/token",
		Body: tokenRequest{
			ClientID:     s.creds.AdvClientID,
			ClientSecret: s.creds.AdvClientSecret,
			GrantType:    "client_credentials",
		},
	}, &resp); err != nil {
		return nil, fmt.Errorf("performance token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("performance token: empty access token")
	}

	token := &oauth2.Token{AccessToken: resp.AccessToken, TokenType: resp.TokenType}
	if resp.ExpiresIn > 0 {
		token.Expiry = s.client.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token, nil
}

// tokenSource возвращает кешированный источник токена продавца.
func (c *Client) tokenSource(seller string) (oauth2.TokenSource, bool) {
	creds, ok := c.creds.Lookup(seller)
	if !ok || !creds.HasPerformanceAPI() {
		c.logger.WithField("seller", seller).Warn("performance api credentials missing, skipping")
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.tokens[seller]
	if !ok {
		ts = oauth2.ReuseTokenSource(nil, performanceTokenSource{client: c, creds: creds})
		c.tokens[seller] = ts
	}
	return ts, true
}

func (c *Client) performanceHeaders(ts oauth2.TokenSource) (map[string]string, error) {
	token, err := ts.Token()
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token.AccessToken}, nil
}

type campaignListResponse struct {
	List []struct {
		ID    flexString `json:"id"`
		Title string     `json:"title"`
		State string     `json:"state"`
	} `json:"list"`
}

type campaignProductsResponse struct {
	Products []struct {
		SKU flexString `json:"sku"`
	} `json:"products"`
	Total flexInt `json:"total"`
}

type searchPromoRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// RunningCampaigns возвращает запущенные кампании с рекламой товаров.
func (c *Client) RunningCampaigns(ctx context.Context, seller string) ([]domain.Campaign, error) {
	ts, ok := c.tokenSource(seller)
	if !ok {
		return nil, nil
	}
	headers, err := c.performanceHeaders(ts)
	if err != nil {
		return nil, err
	}

	var resp campaignListResponse
	if err := c.call(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    c.cfg.PerformanceURL + "/api/client/campaign",
		Query: url.Values{
			"advObjectType": {"SKU"},
			"state":         {"CAMPAIGN_STATE_RUNNING"},
		},
		Headers: headers,
	}, &resp); err != nil {
		return nil, fmt.Errorf("running campaigns: %w", err)
	}

	out := make([]domain.Campaign, 0, len(resp.List))
	for _, item := range resp.List {
		if item.ID == "" {
			continue
		}
		out = append(out, domain.Campaign{ID: string(item.ID), Title: item.Title, State: item.State})
	}
	return out, nil
}

// CampaignProducts возвращает SKU кампании. Страницы нумеруются с нуля.
func (c *Client) CampaignProducts(ctx context.Context, seller, campaignID string) ([]string, error) {
	ts, ok := c.tokenSource(seller)
	if !ok {
		return nil, nil
	}
	target := c.cfg.PerformanceURL + "/api/client/campaign/" + url.PathEscape(campaignID) + "/v2/products"

	skus, err := paginator.Offset(ctx, c.pause(), campaignPageSize, paginator.ShortPage[string],
		func(ctx context.Context, page, pageSize int) (paginator.OffsetPage[string], error) {
			headers, err := c.performanceHeaders(ts)
			if err != nil {
				return paginator.OffsetPage[string]{}, err
			}
			var resp campaignProductsResponse
			if err := c.call(ctx, gateway.Request{
				Method: http.MethodGet,
				URL:    target,
				Query: url.Values{
					"page":     {strconv.Itoa(page - 1)},
					"pageSize": {strconv.Itoa(pageSize)},
				},
				Headers: headers,
			}, &resp); err != nil {
				return paginator.OffsetPage[string]{}, err
			}
			return paginator.OffsetPage[string]{Items: productSKUs(resp), Total: int(resp.Total)}, nil
		})
	if err != nil {
		return skus, fmt.Errorf("campaign %s products: %w", campaignID, err)
	}
	return skus, nil
}

// SearchPromotedProducts возвращает SKU из продвижения в поиске.
// Обход завершается, когда total меньше размера страницы.
func (c *Client) SearchPromotedProducts(ctx context.Context, seller string) ([]string, error) {
	ts, ok := c.tokenSource(seller)
	if !ok {
		return nil, nil
	}

	skus, err := paginator.Offset(ctx, c.pause(), campaignPageSize, paginator.TotalBelow[string],
		func(ctx context.Context, page, pageSize int) (paginator.OffsetPage[string], error) {
			headers, err := c.performanceHeaders(ts)
			if err != nil {
				return paginator.OffsetPage[string]{}, err
			}
			var resp campaignProductsResponse
			if err := c.call(ctx, gateway.Request{
				Method:  http.MethodPost,
				URL:     c.cfg.PerformanceURL + "/api/client/campaign/search_promo/v2/products",
				Headers: headers,
				Body:    searchPromoRequest{Page: page - 1, PageSize: pageSize},
			}, &resp); err != nil {
				return paginator.OffsetPage[string]{}, err
			}
			return paginator.OffsetPage[string]{Items: productSKUs(resp), Total: int(resp.Total)}, nil
		})
	if err != nil {
		return skus, fmt.Errorf("search promoted products: %w", err)
	}
	return skus, nil
}

func productSKUs(resp campaignProductsResponse) []string {
	out := make([]string, 0, len(resp.Products))
	for _, p := range resp.Products {
		if p.SKU != "" {
			out = append(out, string(p.SKU))
		}
	}
	return out
}
