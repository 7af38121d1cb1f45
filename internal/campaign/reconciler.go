// Package campaign собирает множество рекламируемых SKU продавца из кампаний и продвижения в поиске.
package campaign

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/paginator"
)

const (
	DefaultBatchSize     = 5
	DefaultBatchInterval = time.Second
)

// Config задаёт размер пачки кампаний и паузу между пачками.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
}

// Reconciler объединяет SKU из рекламных кампаний и продвижения в поиске.
type Reconciler struct {
	source domain.CampaignSource
	cfg    Config
	logger *log.Entry
}

// NewReconciler создаёт сборщик поверх источника кампаний.
func NewReconciler(source domain.CampaignSource, cfg Config, logger *log.Entry) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchInterval < 0 {
		cfg.BatchInterval = 0
	}
	if logger == nil {
		logger = log.WithField("component", "campaign-reconciler")
	}
	return &Reconciler{source: source, cfg: cfg, logger: logger}
}

// Reconcile возвращает рекламируемые SKU продавца: сначала из кампаний (с id кампании),
// затем из продвижения в поиске. Внутри источника SKU уникальны, между источниками дубли сохраняются.
// Сбой отдельной кампании не прерывает остальные. Сбой списка кампаний означает
// ноль кампаний, продвижение в поиске всё равно запрашивается.
func (r *Reconciler) Reconcile(ctx context.Context, seller string) ([]domain.CampaignProduct, error) {
	logger := r.logger.WithField("seller", seller)

	campaigns, err := r.source.RunningCampaigns(ctx, seller)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("running campaigns failed, continuing with search promotion only")
		campaigns = nil
	}

	display, err := r.displayProducts(ctx, logger, seller, campaigns)
	if err != nil {
		return nil, err
	}

	searchSKUs, err := r.source.SearchPromotedProducts(ctx, seller)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).Warn("search promotion products failed, continuing with partial result")
	}
	search := dedupe(searchSKUs, func(string) string { return domain.SearchPromotionObjectID })

	out := make([]domain.CampaignProduct, 0, len(display)+len(search))
	out = append(out, display...)
	out = append(out, search...)

	logger.WithFields(log.Fields{
		"campaigns": len(campaigns),
		"display":   len(display),
		"search":    len(search),
	}).Info("advertised products reconciled")
	return out, nil
}

// displayProducts обходит кампании пачками; следующая пачка стартует после завершения предыдущей и паузы.
func (r *Reconciler) displayProducts(ctx context.Context, logger *log.Entry, seller string, campaigns []domain.Campaign) ([]domain.CampaignProduct, error) {
	perCampaign := make([][]string, len(campaigns))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for start := 0; start < len(campaigns); start += r.cfg.BatchSize {
		if start > 0 {
			if err := paginator.Sleep(ctx, r.cfg.BatchInterval); err != nil {
				return nil, err
			}
		}
		end := min(start+r.cfg.BatchSize, len(campaigns))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				id := campaigns[i].ID
				skus, err := r.source.CampaignProducts(gctx, seller, id)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					logger.WithError(err).WithField("campaign_id", id).Warn("campaign products failed, skipping campaign")
				}
				perCampaign[i] = skus
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	owner := make(map[string]string)
	var ordered []string
	for i, skus := range perCampaign {
		for _, sku := range skus {
			if _, ok := owner[sku]; ok {
				continue
			}
			owner[sku] = campaigns[i].ID
			ordered = append(ordered, sku)
		}
	}
	return dedupe(ordered, func(sku string) string { return owner[sku] }), nil
}

func dedupe(skus []string, objectID func(sku string) string) []domain.CampaignProduct {
	out := make([]domain.CampaignProduct, 0, len(skus))
	seen := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		if sku == "" {
			continue
		}
		if _, dup := seen[sku]; dup {
			continue
		}
		seen[sku] = struct{}{}
		out = append(out, domain.CampaignProduct{SKU: sku, AdvertisingObjectID: objectID(sku)})
	}
	return out
}
