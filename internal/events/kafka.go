// internal/events/kafka.go
package events

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// MessageWriter is the part of kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by application id so one
// application's events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
		Transport:    transport(cfg),
	}
	return NewKafkaPublisherWithWriter(w)
}

func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt models.StageChangedEvent) error {
	value, err := Encode(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.ApplicationID),
		Value: value,
		Time:  p.now(),
	})
	observe("kafka", err)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func transport(cfg config.KafkaConfig) *kafka.Transport {
	t := &kafka.Transport{}
	if cfg.Username != "" {
		t.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.TLS {
		t.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return t
}

func dialer(cfg config.KafkaConfig) *kafka.Dialer {
	d := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if cfg.Username != "" {
		d.SASLMechanism = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.TLS {
		d.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return d
}

// Handler processes one decoded event.
type Handler interface {
	HandleStageChanged(ctx context.Context, evt models.StageChangedEvent) error
}

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the topic in a consumer group and commits each message
// after the handler has seen it. Undecodable messages are skipped.
type Consumer struct {
	reader  MessageReader
	handler Handler
	logger  logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, handler Handler, log logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer:   dialer(cfg),
	})
	return NewConsumerWithReader(r, handler, log)
}

func NewConsumerWithReader(r MessageReader, handler Handler, log logger.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  log.WithFields(map[string]interface{}{"component": "stage-consumer"}),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("kafka fetch failed", map[string]interface{}{"error": err.Error()})
			return err
		}

		evt, err := Decode(msg.Value)
		if err != nil {
			c.logger.Warn("skipping undecodable stage event", map[string]interface{}{
				"error":     err.Error(),
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
		} else if err := c.handler.HandleStageChanged(ctx, evt); err != nil {
			c.logger.Error("stage event handler failed", map[string]interface{}{
				"error":         err.Error(),
				"applicationId": evt.ApplicationID,
				"offset":        msg.Offset,
			})
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("kafka commit failed", map[string]interface{}{"error": err.Error()})
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
