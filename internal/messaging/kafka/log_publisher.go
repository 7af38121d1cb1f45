package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

// LogPublisher пишет события в лог, когда брокеры Kafka не заданы.
type LogPublisher struct {
	topics   Topics
	observer Observer
	logger   *log.Entry
}

// NewLogPublisher создаёт публикатор, пишущий JSON событий на уровне info.
func NewLogPublisher(topics Topics, observer Observer, logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "log-publisher")
	}
	return &LogPublisher{topics: topics.withDefaults(), observer: observer, logger: logger}
}

func (p *LogPublisher) PublishZeroStockAdvertised(ctx context.Context, event domain.ZeroStockAdvertisedEvent) error {
	return p.write(ctx, p.topics.ZeroStockAdvertised, EventTypeZeroStockAdvertised, event.SKU, event)
}

func (p *LogPublisher) PublishLowStock(ctx context.Context, notification domain.LowStockNotification) error {
	return p.write(ctx, p.topics.LowStock, EventTypeLowStock, notification.SKU, notification)
}

func (p *LogPublisher) write(ctx context.Context, topic string, eventType EventType, key string, event any) error {
	err := ctx.Err()
	var payload []byte
	if err == nil {
		payload, err = json.Marshal(event)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrPublish, err)
	} else {
		p.logger.WithFields(log.Fields{
			"topic":      topic,
			"event_type": eventType,
			"key":        key,
			"payload":    string(payload),
		}).Info("event published")
	}
	if p.observer != nil {
		p.observer.RecordPublish(topic, err)
	}
	return err
}
