package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cediman-be/internal/logger"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"go.uber.org/zap"
)

const (
	defaultMaxBufferedRecords = 10_000
	defaultDeliveryTimeout    = 30 * time.Second
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string

	// MaxBufferedRecords caps records waiting for the broker. Events beyond
	// it are dropped rather than stalling the caller.
	MaxBufferedRecords int
	DeliveryTimeout    time.Duration
}

// producer is the non-blocking subset of *kgo.Client.
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

type kafkaPublisher struct {
	client producer
	topic  string
}

// NewKafkaPublisher returns a NoopPublisher when no brokers are configured.
func NewKafkaPublisher(cfg KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.L().Info("no kafka brokers configured, status events disabled")
		return NoopPublisher{}, nil
	}

	if cfg.MaxBufferedRecords <= 0 {
		cfg.MaxBufferedRecords = defaultMaxBufferedRecords
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1_000_000),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return newKafkaPublisher(client, cfg.Topic), nil
}

func newKafkaPublisher(client producer, topic string) *kafkaPublisher {
	return &kafkaPublisher{client: client, topic: topic}
}

func (p *kafkaPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.OrderID),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventStatusChanged)},
			{Key: "version", Value: []byte(SchemaVersion)},
		},
		Timestamp: ev.At,
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "events"),
		zap.String("order_id", ev.OrderID),
		zap.String("to", ev.To),
	)

	// The request context ends with the response; the record must outlive it.
	// Delivery is bounded by RecordDeliveryTimeout instead.
	p.client.TryProduce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if errors.Is(err, kgo.ErrMaxBuffered) {
			log.Warn("status event dropped, producer buffer full")
			return
		}
		if err != nil {
			log.Error("failed to produce status event", zap.Error(err))
			return
		}
		log.Debug("status event produced",
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset),
		)
	})

	return nil
}

func (p *kafkaPublisher) Close() {
	p.client.Close()
}
