package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/service/watch"
)

// RunOnce выполняет один проход без HTTP-сервера. Пустой names означает всех продавцов из конфигурации.
func RunOnce(ctx context.Context, cfg config.Config, names []string, dryRun bool) (watch.Summary, error) {
	logger := log.WithField("component", "run-once")

	rt, err := Build(ctx, cfg, BuildOptions{DryRun: dryRun, Logger: logger})
	if err != nil {
		return watch.Summary{}, err
	}
	defer func() { _ = rt.Close() }()

	sellers, err := selectSellers(rt.Service.Sellers(), names)
	if err != nil {
		return watch.Summary{}, err
	}
	return rt.Service.RunSellers(ctx, sellers)
}

func selectSellers(all []watch.Seller, names []string) ([]watch.Seller, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]watch.Seller, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	out := make([]watch.Seller, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("seller %q is not configured", name)
		}
		out = append(out, s)
	}
	return out, nil
}
