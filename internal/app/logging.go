package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging настраивает глобальный logrus: уровень и формат text|json.
func ConfigureLogging(level, format string) error {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(lvl)

	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	return nil
}
