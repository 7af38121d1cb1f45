package app

import (
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
	"github.com/vladislavdragonenkov/stockwatch/internal/messaging/kafka"
)

// initPublisher создаёт Kafka producer, если заданы брокеры.
// Без брокеров, в dry-run или при ошибке подключения события пишутся в лог.
func initPublisher(cfg config.KafkaConfig, observer kafka.Observer, dryRun bool, logger *log.Entry) (domain.EventPublisher, io.Closer) {
	topics := kafka.Topics{
		ZeroStockAdvertised: cfg.TopicZeroStock,
		LowStock:            cfg.TopicLowStock,
	}
	fallback := kafka.NewLogPublisher(topics, observer, logger.WithField("component", "log-publisher"))

	if dryRun {
		logger.Info("dry-run: события только логируются")
		return fallback, nil
	}
	if len(cfg.Brokers) == 0 {
		return fallback, nil
	}

	producer, err := kafka.NewProducer(cfg.Brokers, topics, observer)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing with log publisher")
		return fallback, nil
	}

	logger.WithField("brokers", cfg.Brokers).Info("kafka producer initialized")
	return producer, producer
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer io.Closer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
