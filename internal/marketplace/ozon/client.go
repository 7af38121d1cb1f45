// Package ozon — адаптер Ozon Seller API и Performance API.
package ozon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
	"github.com/vladislavdragonenkov/stockwatch/internal/paginator"
)

const (
	DefaultSellerURL      = "https://api-seller.ozon.ru"
	DefaultPerformanceURL = "https://api-performance.ozon.ru"

	productListLimit = 1000
	stockListLimit   = 1000
	analyticsLimit   = 1000
	campaignPageSize = 100
)

// Doer выполняет запрос через шлюз с повторами.
type Doer interface {
	Do(ctx context.Context, req gateway.Request) gateway.Result
}

// Config — адреса API и параметры пагинации.
type Config struct {
	SellerURL        string
	PerformanceURL   string
	PageInterval     time.Duration
	ProductBatchSize int
	// TokenTimeout ограничивает получение токена Performance API.
	TokenTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SellerURL == "" {
		c.SellerURL = DefaultSellerURL
	}
	if c.PerformanceURL == "" {
		c.PerformanceURL = DefaultPerformanceURL
	}
	c.SellerURL = strings.TrimRight(c.SellerURL, "/")
	c.PerformanceURL = strings.TrimRight(c.PerformanceURL, "/")
	if c.ProductBatchSize <= 0 {
		c.ProductBatchSize = 10
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = time.Minute
	}
	return c
}

// Client реализует domain.Catalog, domain.CampaignSource и domain.SalesSource.
type Client struct {
	gw     Doer
	creds  config.CredentialSet
	cfg    Config
	logger *log.Entry
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]oauth2.TokenSource
}

// New создаёт адаптер поверх шлюза.
func New(gw Doer, creds config.CredentialSet, cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "ozon")
	}
	if creds == nil {
		creds = config.CredentialSet{}
	}
	return &Client{
		gw:     gw,
		creds:  creds,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		tokens: make(map[string]oauth2.TokenSource),
	}
}

// pause выдерживается после каждой нетерминальной страницы или пачки.
func (c *Client) pause() paginator.Pause {
	return paginator.FixedPause(c.cfg.PageInterval)
}

func (c *Client) sellerCredentials(seller string) (config.Credentials, bool) {
	creds, ok := c.creds.Lookup(seller)
	if !ok || !creds.HasSellerAPI() {
		c.logger.WithField("seller", seller).Warn("seller api credentials missing, skipping")
		return config.Credentials{}, false
	}
	return creds, true
}

func (c *Client) sellerHeaders(creds config.Credentials) map[string]string {
	return map[string]string{
		"Client-Id": creds.ClientID,
		"Api-Key":   creds.APIKey,
	}
}

// call выполняет запрос и разбирает ответ. Отсутствие данных возвращается как paginator.ErrNoData.
func (c *Client) call(ctx context.Context, req gateway.Request, out any) error {
	res := c.gw.Do(ctx, req)
	if err := res.Decode(out); err != nil {
		if errors.Is(err, gateway.ErrNoData) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %w", paginator.ErrNoData, err)
		}
		return err
	}
	return nil
}

// flexString принимает строку или число.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt принимает число или число в строке.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
