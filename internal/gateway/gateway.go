package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const maxResponseBytes = 32 << 20

var (
	// Исчерпаны попытки: сеть, таймаут или не-2xx ответ.
	ErrTransport = errors.New("gateway: transport failure")
	// Ответ не содержит данных (пустой результат или ошибка транспорта).
	ErrNoData = errors.New("gateway: no data")
)

// Config задаёт политику повторов и пул соединений.
type Config struct {
	MaxAttempts     uint
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	Timeout         time.Duration
	MaxConns        int
	MaxConnsPerHost int
	DNSCacheTTL     time.Duration
	// UserAgent, если задан, отправляется с каждым запросом.
	UserAgent string
}

// DefaultConfig возвращает политику по умолчанию: 5 попыток, пауза 5–20 секунд, таймаут 30 секунд.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		MinBackoff:      5 * time.Second,
		MaxBackoff:      20 * time.Second,
		Timeout:         30 * time.Second,
		MaxConns:        100,
		MaxConnsPerHost: 10,
		DNSCacheTTL:     300 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxConns <= 0 {
		c.MaxConns = def.MaxConns
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if c.DNSCacheTTL <= 0 {
		c.DNSCacheTTL = def.DNSCacheTTL
	}
	return c
}

// Observer получает статистику попыток и итоговых исходов.
type Observer interface {
	ObserveAttempt(host string, err error)
	ObserveResult(outcome string)
}

// Request описывает один логический запрос к внешнему API.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	// Body сериализуется в JSON; nil — запрос без тела.
	Body any
}

// Outcome — исход запроса после всех попыток.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeEmpty
	OutcomeTransportError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	default:
		return "transport_error"
	}
}

// Result — явный результат запроса: данные, пустой ответ или ошибка транспорта.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Attempts   int
	Err        error
}

// OK сообщает, что ответ содержит данные.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Decode разбирает JSON-ответ. Для пустого ответа и ошибки транспорта возвращает ErrNoData.
func (r Result) Decode(v any) error {
	if !r.OK() {
		if r.Err != nil {
			return fmt.Errorf("%w: %w", ErrNoData, r.Err)
		}
		return ErrNoData
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client выполняет HTTP-запросы с повторами и общим ограничением соединений.
type Client struct {
	cfg      Config
	http     *http.Client
	sem      *semaphore.Weighted
	logger   *log.Entry
	observer Observer
}

// Option настраивает Client.
type Option func(*Client)

// WithLogger задаёт логгер клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver подключает сбор метрик.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient подменяет HTTP-клиент (используется в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New создаёт клиент с пулом соединений и кешем DNS.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: newTransport(cfg, newDNSCache(cfg.DNSCacheTTL))},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConns)),
		logger: log.WithField("component", "gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	status int
	body   []byte
}

// Do выполняет запрос с повторами. Ошибкой результат не бывает: после исчерпания
// попыток возвращается OutcomeTransportError с последней ошибкой.
func (c *Client) Do(ctx context.Context, req Request) Result {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return c.finish(Result{Outcome: OutcomeTransportError, Err: fmt.Errorf("%w: %w", ErrTransport, err)})
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return c.finish(Result{Outcome: OutcomeTransportError, Err: fmt.Errorf("%w: encode body: %w", ErrTransport, err)})
		}
	}

	attempts := 0
	operation := func() (response, error) {
		attempts++
		resp, err := c.attempt(ctx, method, target, req.Headers, payload)
		if c.observer != nil {
			c.observer.ObserveAttempt(target.Host, err)
		}
		if err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"method":  method,
				"url":     target.Redacted(),
				"attempt": attempts,
			}).Warn("gateway attempt failed")
			return response{}, err
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newUniformBackOff(c.cfg.MinBackoff, c.cfg.MaxBackoff)),
		backoff.WithMaxTries(c.cfg.MaxAttempts),
	)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"method":   method,
			"url":      target.Redacted(),
			"attempts": attempts,
		}).Error("gateway gave up, returning no data")
		return c.finish(Result{
			Outcome:  OutcomeTransportError,
			Attempts: attempts,
			Err:      fmt.Errorf("%w: %s %s: %w", ErrTransport, method, target.Path, err),
		})
	}

	result := Result{Outcome: OutcomeSuccess, StatusCode: resp.status, Body: resp.body, Attempts: attempts}
	if isEmptyBody(resp.body) {
		result.Outcome = OutcomeEmpty
		result.Body = nil
	}
	return c.finish(result)
}

func (c *Client) finish(r Result) Result {
	if c.observer != nil {
		c.observer.ObserveResult(r.Outcome.String())
	}
	return r
}

// attempt выполняет одну попытку; ошибки отмены контекста не повторяются.
func (c *Client) attempt(ctx context.Context, method string, target *url.URL, headers map[string]string, payload []byte) (response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return response{}, backoff.Permanent(err)
	}
	defer c.sem.Release(1)

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target.String(), body)
	if err != nil {
		return response{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return response{}, backoff.Permanent(ctx.Err())
		}
		return response{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(raw))
	}
	if !isEmptyBody(raw) && !json.Valid(raw) {
		return response{}, fmt.Errorf("invalid json response: %s", snippet(raw))
	}

	return response{status: resp.StatusCode, body: raw}, nil
}

func buildURL(raw string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func isEmptyBody(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func snippet(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
