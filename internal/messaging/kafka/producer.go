package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockwatch/internal/domain"
)

// Producer публикует события сервиса в Kafka и реализует domain.EventPublisher.
type Producer struct {
	producer sarama.SyncProducer
	topics   Topics
	observer Observer
	logger   *log.Entry
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string, topics Topics, observer Observer) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = "stockwatch"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // Для идемпотентности

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newProducer(producer, topics, observer), nil
}

func newProducer(producer sarama.SyncProducer, topics Topics, observer Observer) *Producer {
	return &Producer{
		producer: producer,
		topics:   topics.withDefaults(),
		observer: observer,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// PublishZeroStockAdvertised публикует событие о рекламе товара без остатка.
func (p *Producer) PublishZeroStockAdvertised(ctx context.Context, event domain.ZeroStockAdvertisedEvent) error {
	return p.publish(ctx, p.topics.ZeroStockAdvertised, EventTypeZeroStockAdvertised, event.Seller, event.SKU, event)
}

// PublishLowStock публикует уведомление о низком остатке.
func (p *Producer) PublishLowStock(ctx context.Context, notification domain.LowStockNotification) error {
	return p.publish(ctx, p.topics.LowStock, EventTypeLowStock, notification.Seller, notification.SKU, notification)
}

func (p *Producer) publish(ctx context.Context, topic string, eventType EventType, seller, key string, event any) error {
	err := p.send(ctx, topic, eventType, seller, key, event)
	if p.observer != nil {
		p.observer.RecordPublish(topic, err)
	}
	return err
}

func (p *Producer) send(ctx context.Context, topic string, eventType EventType, seller, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %w", domain.ErrPublish, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(eventData),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(eventType)},
			{Key: []byte(HeaderSeller), Value: []byte(seller)},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"key":   key,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("%w: send message: %w", domain.ErrPublish, err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
