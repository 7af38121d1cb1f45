// Команда stockwatch-run выполняет один проход по продавцам и печатает итог.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/app"
	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/version"
)

type options struct {
	sellers []string
	dryRun  bool
	timeout time.Duration
}

func parseFlags(args []string, defaultTimeout time.Duration) (options, error) {
	fs := flag.NewFlagSet("stockwatch-run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts    options
		sellers string
	)
	fs.StringVar(&sellers, "seller", "", "comma-separated sellers to process (default: all configured)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "log events instead of publishing to kafka")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "run timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be positive, got %s", opts.timeout)
	}
	for _, s := range strings.Split(sellers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.sellers = append(opts.sellers, s)
		}
	}
	return opts, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if err := app.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		fail("configure logging: %v", err)
	}

	opts, err := parseFlags(os.Args[1:], cfg.RunTimeout)
	if err != nil {
		fail("parse flags: %v", err)
	}

	log.WithFields(log.Fields{
		"build":   version.Current().String(),
		"sellers": opts.sellers,
		"dry_run": opts.dryRun,
	}).Info("starting single watch run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	summary, err := app.RunOnce(ctx, cfg, opts.sellers, opts.dryRun)
	if err != nil {
		fail("run failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fail("encode summary: %v", err)
	}
	if summary.Failures > 0 {
		log.WithField("failures", summary.Failures).Warn("run finished with failures")
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
