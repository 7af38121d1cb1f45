// Package watch запускает проход по продавцам: поиск рекламы без остатка и оценку низкого остатка.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

const (
	DefaultWindowDays        = 30
	DefaultSellerConcurrency = 1

	// Метка решения, по которому отправлено уведомление.
	OutcomeFired = "fired"
)

// ErrNoSellers возвращается, если проход запущен без продавцов.
var ErrNoSellers = errors.New("no sellers configured")

// Seller — аккаунт продавца и его юридическое лицо.
type Seller struct {
	Name        string
	LegalEntity string
}

// Reconciler отдаёт рекламируемые SKU продавца.
type Reconciler interface {
	Reconcile(ctx context.Context, seller string) ([]domain.CampaignProduct, error)
}

// Recorder получает метрики прохода.
type Recorder interface {
	RunStarted()
	RunFinished(err error, duration time.Duration)
	RecordDecision(outcome string)
}

// Dependencies собирает порты, через которые сервис получает данные и сохраняет состояние.
type Dependencies struct {
	Catalog       domain.Catalog
	Campaigns     Reconciler
	Sales         domain.SalesSource
	Products      domain.ProductRepository
	Notifications domain.NotificationRepository
	Publisher     domain.EventPublisher
}

func (d Dependencies) validate(lowStock bool) error {
	var errs []error
	if d.Catalog == nil {
		errs = append(errs, errors.New("catalog is required"))
	}
	if d.Campaigns == nil {
		errs = append(errs, errors.New("campaign reconciler is required"))
	}
	if d.Publisher == nil {
		errs = append(errs, errors.New("publisher is required"))
	}
	if lowStock {
		if d.Sales == nil {
			errs = append(errs, errors.New("sales source is required"))
		}
		if d.Products == nil {
			errs = append(errs, errors.New("product repository is required"))
		}
		if d.Notifications == nil {
			errs = append(errs, errors.New("notification repository is required"))
		}
	}
	return errors.Join(errs...)
}

// Options задаёт параметры сервиса.
type Options struct {
	Logger            *log.Entry
	Recorder          Recorder
	Clock             domain.Clock
	Engine            *domain.ThresholdEngine
	WindowDays        int
	LowStock          bool
	SellerConcurrency int
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithRecorder задаёт приёмник метрик.
func WithRecorder(recorder Recorder) Option {
	return func(opts *Options) {
		opts.Recorder = recorder
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithEngine задаёт движок порогов.
func WithEngine(engine *domain.ThresholdEngine) Option {
	return func(opts *Options) {
		opts.Engine = engine
	}
}

// WithWindowDays задаёт окно расчёта продаж в днях.
func WithWindowDays(days int) Option {
	return func(opts *Options) {
		opts.WindowDays = days
	}
}

// WithLowStock включает или выключает оценку низкого остатка.
func WithLowStock(enabled bool) Option {
	return func(opts *Options) {
		opts.LowStock = enabled
	}
}

// WithSellerConcurrency задаёт число продавцов, обрабатываемых одновременно.
func WithSellerConcurrency(n int) Option {
	return func(opts *Options) {
		opts.SellerConcurrency = n
	}
}

// Summary содержит итоги одного прохода.
type Summary struct {
	RunID                 string
	Sellers               int
	Products              int
	ZeroStockEvents       int
	LowStockNotifications int
	Failures              int
	Duration              time.Duration
}

// sellerResult копится одной горутиной продавца.
type sellerResult struct {
	products      int
	events        int
	notifications int
	failures      int
}

// Service выполняет проход по всем продавцам.
type Service struct {
	sellers []Seller
	deps    Dependencies
	opts    Options
	logger  *log.Entry
	// running не даёт запустить второй проход параллельно первому.
	running atomic.Bool
}

// ErrRunInProgress возвращается, если предыдущий проход ещё не завершён.
var ErrRunInProgress = errors.New("watch run already in progress")

// New создаёт сервис. Продавцы обрабатываются в заданном порядке.
func New(sellers []Seller, deps Dependencies, options ...Option) (*Service, error) {
	opts := Options{
		WindowDays:        DefaultWindowDays,
		LowStock:          true,
		SellerConcurrency: DefaultSellerConcurrency,
	}
	for _, apply := range options {
		apply(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "watch")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Engine == nil {
		opts.Engine = domain.NewThresholdEngine(nil)
	}
	if opts.WindowDays <= 0 {
		return nil, domain.ErrWindowInvalid
	}
	if opts.SellerConcurrency <= 0 {
		opts.SellerConcurrency = DefaultSellerConcurrency
	}
	if err := deps.validate(opts.LowStock); err != nil {
		return nil, fmt.Errorf("watch dependencies: %w", err)
	}

	return &Service{
		sellers: append([]Seller(nil), sellers...),
		deps:    deps,
		opts:    opts,
		logger:  opts.Logger,
	}, nil
}

// Sellers возвращает продавцов, обрабатываемых сервисом.
func (s *Service) Sellers() []Seller {
	return append([]Seller(nil), s.sellers...)
}

// Run обрабатывает всех продавцов. Ошибки отдельных продавцов и SKU логируются
// и учитываются в Summary. Ошибка возвращается, только если продавцов нет или контекст завершён.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	return s.RunSellers(ctx, s.sellers)
}

// RunSellers обрабатывает указанных продавцов.
func (s *Service) RunSellers(ctx context.Context, sellers []Seller) (summary Summary, err error) {
	summary.RunID = uuid.NewString()
	if len(sellers) == 0 {
		return summary, ErrNoSellers
	}
	if !s.running.CompareAndSwap(false, true) {
		return summary, ErrRunInProgress
	}
	defer s.running.Store(false)

	logger := s.logger.WithField("run_id", summary.RunID)
	started := time.Now()
	if s.opts.Recorder != nil {
		s.opts.Recorder.RunStarted()
	}
	defer func() {
		summary.Duration = time.Since(started)
		if s.opts.Recorder != nil {
			s.opts.Recorder.RunFinished(err, summary.Duration)
		}
	}()

	logger.WithField("sellers", len(sellers)).Info("watch run started")

	results := make([]sellerResult, len(sellers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SellerConcurrency)
	for i, seller := range sellers {
		g.Go(func() error {
			results[i] = s.runSeller(gctx, logger.WithField("seller", seller.Name), seller)
			return nil
		})
	}
	_ = g.Wait()

	summary.Sellers = len(sellers)
	for _, r := range results {
		summary.Products += r.products
		summary.ZeroStockEvents += r.events
		summary.LowStockNotifications += r.notifications
		summary.Failures += r.failures
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.WithError(ctxErr).Warn("watch run interrupted")
		return summary, ctxErr
	}

	logger.WithFields(log.Fields{
		"products":      summary.Products,
		"events":        summary.ZeroStockEvents,
		"notifications": summary.LowStockNotifications,
		"failures":      summary.Failures,
		"duration":      time.Since(started).String(),
	}).Info("watch run finished")
	return summary, nil
}

func (s *Service) runSeller(ctx context.Context, logger *log.Entry, seller Seller) (res sellerResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("seller pipeline panicked")
			res.failures++
		}
	}()

	advertised, err := s.deps.Campaigns.Reconcile(ctx, seller.Name)
	if err != nil {
		logger.WithError(err).Warn("advertised products unavailable")
		res.failures++
	}

	products, err := s.deps.Catalog.ListProducts(ctx, seller.Name)
	if err != nil {
		logger.WithError(err).Error("list products failed")
		res.failures++
		return res
	}
	res.products = len(products)

	now := s.opts.Clock()
	for _, event := range domain.MatchZeroStockAdvertised(seller.Name, seller.LegalEntity, products, advertised, now) {
		if err := s.deps.Publisher.PublishZeroStockAdvertised(ctx, event); err != nil {
			logger.WithError(err).WithField("sku", event.SKU).Error("zero stock event publish failed")
			res.failures++
			continue
		}
		res.events++
	}

	if !s.opts.LowStock || len(products) == 0 {
		return res
	}

	window := s.opts.WindowDays
	to := domain.Day(now)
	from := to.AddDate(0, 0, -(2*window - 1))
	sales, err := s.deps.Sales.DailySales(ctx, seller.Name, from, to)
	if err != nil {
		logger.WithError(err).Warn("daily sales unavailable, evaluating with stored history")
		res.failures++
		sales = nil
	}

	for _, snapshot := range products {
		if ctx.Err() != nil {
			return res
		}
		snapshot.Sales = sales[snapshot.Sku.ExternalSKU]
		fired, err := s.evaluate(ctx, logger, snapshot, now)
		if err != nil {
			logger.WithError(err).WithField("sku", snapshot.Sku.Key()).Warn("low stock evaluation failed")
			res.failures++
			continue
		}
		if fired {
			res.notifications++
		}
	}
	return res
}

// evaluate обновляет агрегат товара и при эскалации отправляет уведомление о низком остатке.
func (s *Service) evaluate(ctx context.Context, logger *log.Entry, snapshot domain.ProductSnapshot, now time.Time) (bool, error) {
	today, err := domain.NewSale(now, 0, snapshot.Stock() > 0)
	if err != nil {
		return false, err
	}
	for _, sale := range snapshot.Sales {
		if sale.Date.Equal(today.Date) {
			today.Quantity = sale.Quantity
		}
	}
	snapshot.Sales = append(snapshot.Sales, today)

	product, err := s.loadProduct(ctx, snapshot)
	if err != nil {
		return false, err
	}
	product.UpdateStatus()

	report, err := product.SalesAvailability(now, s.opts.WindowDays)
	if err != nil {
		return false, err
	}
	key := product.Sku.Key()
	notification, err := s.deps.Notifications.Get(ctx, product.Seller, key)
	if err != nil {
		return false, fmt.Errorf("load notification: %w", err)
	}

	decision := s.opts.Engine.Evaluate(notification, product, report)
	fired := false
	if decision.Fire {
		if err := s.deps.Publisher.PublishLowStock(ctx, decision.Alert); err != nil {
			logger.WithError(err).WithField("sku", key).Error("low stock notification publish failed")
		} else {
			fired = true
			decision.Notification.UpdatedAt = now.UTC()
			if err := s.deps.Notifications.Save(ctx, decision.Notification); err != nil {
				return fired, fmt.Errorf("save notification: %w", err)
			}
			logger.WithFields(log.Fields{
				"sku":    key,
				"tag":    decision.Notification.Status,
				"ratio":  decision.Ratio,
				"status": product.Status,
			}).Info("low stock notification sent")
		}
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordDecision(outcomeOf(decision, fired))
	}

	if err := s.deps.Products.Save(ctx, product); err != nil {
		return fired, fmt.Errorf("save product: %w", err)
	}
	return fired, nil
}

func (s *Service) loadProduct(ctx context.Context, snapshot domain.ProductSnapshot) (*domain.Product, error) {
	product, err := s.deps.Products.Get(ctx, snapshot.Seller, snapshot.Sku.Key())
	switch {
	case err == nil:
		if err := product.Refresh(snapshot); err != nil {
			return nil, err
		}
		return product, nil
	case domain.IsNotFound(err):
		return domain.NewProduct(uuid.NewString(), snapshot)
	default:
		return nil, fmt.Errorf("load product: %w", err)
	}
}

func outcomeOf(decision domain.Decision, fired bool) string {
	switch {
	case fired:
		return OutcomeFired
	case decision.Fire:
		return "publish_failed"
	default:
		return string(decision.Reason)
	}
}
