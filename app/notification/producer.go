// Package notification carries email requests over Kafka from the request
// path to the background sender.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	logger logrus.FieldLogger
}

// SendEmail writes one message at a time and waits for it, so a batch is
// flushed as soon as it holds that message.
const (
	writerBatchSize    = 1
	writerBatchTimeout = 10 * time.Millisecond
)

// NewProducer writes to cfg.EmailTopic and waits for the partition leader's
// acknowledgement on every write.
func NewProducer(cfg config.KafkaConfig, logger logrus.FieldLogger) *Producer {
	return NewProducerWithWriter(newWriter(cfg), logger)
}

func newWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.EmailTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              writerBatchSize,
		BatchTimeout:           writerBatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

func NewProducerWithWriter(writer messageWriter, logger logrus.FieldLogger) *Producer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Producer{
		writer: writer,
		logger: logger.WithField("component", "email_producer"),
	}
}

// SendEmail publishes msg keyed by its recipient. It is not retried.
func (p *Producer) SendEmail(ctx context.Context, msg entity.EmailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email message: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Email),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("publish email message: %w", err)
	}

	p.logger.WithField("email", msg.Email).Debug("Email message published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
