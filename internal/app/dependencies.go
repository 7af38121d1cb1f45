package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/campaign"
	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
	"github.com/vladislavdragonenkov/stockwatch/internal/health"
	"github.com/vladislavdragonenkov/stockwatch/internal/marketplace/ozon"
	"github.com/vladislavdragonenkov/stockwatch/internal/metrics"
	"github.com/vladislavdragonenkov/stockwatch/internal/service/watch"
	"github.com/vladislavdragonenkov/stockwatch/internal/storage/memory"
	"github.com/vladislavdragonenkov/stockwatch/internal/storage/postgres"
	"github.com/vladislavdragonenkov/stockwatch/internal/storage/redis"
	"github.com/vladislavdragonenkov/stockwatch/internal/version"
)

// BuildOptions управляет сборкой зависимостей.
type BuildOptions struct {
	// DryRun заменяет Kafka на публикацию в лог.
	DryRun bool
	// Реестр метрик, по умолчанию prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// HTTPClient подменяет транспорт шлюза.
	HTTPClient *http.Client
	Logger     *log.Entry
}

// Runtime содержит собранный сервис и ресурсы, которые нужно закрыть.
type Runtime struct {
	Service *watch.Service
	Health  *health.Registry
	Metrics *metrics.Metrics

	logger  *log.Entry
	closers []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// Build собирает шлюз, адаптер Ozon, хранилища, публикацию и сервис наблюдения.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (_ *Runtime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	build := version.Current()
	rt := &Runtime{
		Health:  health.NewRegistry(build.Version).WithBuild(build.Commit, build.Date),
		Metrics: metrics.NewWithRegisterer(opts.Registerer),
		logger:  logger,
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger.WithField("component", "gateway")),
		gateway.WithObserver(rt.Metrics),
	}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	}
	gw := gateway.New(gateway.Config{
		MaxAttempts:     cfg.Gateway.MaxAttempts,
		MinBackoff:      cfg.Gateway.MinBackoff,
		MaxBackoff:      cfg.Gateway.MaxBackoff,
		Timeout:         cfg.Gateway.Timeout,
		MaxConns:        cfg.Gateway.MaxConns,
		MaxConnsPerHost: cfg.Gateway.MaxConnsPerHost,
		DNSCacheTTL:     cfg.Gateway.DNSCacheTTL,
		UserAgent:       build.UserAgent(),
	}, gwOpts...)

	client := ozon.New(gw, cfg.Credentials, ozon.Config{
		SellerURL:        cfg.Ozon.SellerURL,
		PerformanceURL:   cfg.Ozon.PerformanceURL,
		PageInterval:     cfg.Ozon.PageInterval,
		ProductBatchSize: cfg.Ozon.ProductBatchSize,
	}, logger.WithField("component", "ozon"))

	deps := watch.Dependencies{
		Catalog: client,
		Campaigns: campaign.NewReconciler(client, campaign.Config{
			BatchSize:     cfg.Watch.CampaignBatchSize,
			BatchInterval: cfg.Watch.BatchInterval,
		}, logger.WithField("component", "campaign-reconciler")),
		Sales: client,
	}

	var store *postgres.Store
	if cfg.NeedsPostgres() {
		store, err = openPostgres(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		rt.addCloser("postgres", store)
		rt.Health.Register("postgres", health.NewPingChecker("postgres", store.Ping))
	}

	deps.Products = memory.NewProductRepository()
	if cfg.Storage.Driver == config.StorageDriverPostgres {
		deps.Products = postgres.NewProductRepository(store)
	}
	if cfg.Watch.SalesSource == config.SalesSourcePostgres {
		deps.Sales = postgres.NewSalesHistory(store)
	}

	deps.Notifications, err = rt.notificationStore(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	publisher, closer := initPublisher(cfg.Kafka, rt.Metrics, opts.DryRun, logger)
	deps.Publisher = publisher
	if closer != nil {
		rt.addCloser("kafka", closer)
	}

	sellers := make([]watch.Seller, 0, len(cfg.Sellers))
	for _, s := range cfg.SellerList() {
		sellers = append(sellers, watch.Seller{Name: s.Name, LegalEntity: s.LegalEntity})
	}

	rt.Service, err = watch.New(sellers, deps,
		watch.WithLogger(logger.WithField("component", "watch")),
		watch.WithRecorder(rt.Metrics),
		watch.WithWindowDays(cfg.Watch.WindowDays),
		watch.WithLowStock(cfg.Watch.LowStock),
		watch.WithSellerConcurrency(cfg.Watch.SellerConcurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("build watch service: %w", err)
	}
	return rt, nil
}

func (rt *Runtime) notificationStore(ctx context.Context, cfg config.Config, store *postgres.Store) (domain.NotificationRepository, error) {
	switch cfg.Notify.Store {
	case config.NotifyStorePostgres:
		return postgres.NewNotificationRepository(store), nil
	case config.NotifyStoreRedis:
		client, err := redis.Connect(ctx, redis.Options{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		rt.addCloser("redis", client)
		rt.Health.Register("redis", health.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		rt.logger.WithField("addr", cfg.Redis.Addr).Info("redis notification store connected")
		return redis.NewNotificationRepository(client, cfg.Redis.KeyPrefix), nil
	default:
		return memory.NewNotificationRepository(), nil
	}
}

func (rt *Runtime) addCloser(name string, c io.Closer) {
	rt.closers = append(rt.closers, namedCloser{name: name, closer: c})
}

// Close освобождает ресурсы в обратном порядке открытия.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if c.name == "kafka" {
			closeKafka(c.closer, rt.logger)
			continue
		}
		if err := c.closer.Close(); err != nil {
			rt.logger.WithError(err).WithField("resource", c.name).Warn("failed to close resource")
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
