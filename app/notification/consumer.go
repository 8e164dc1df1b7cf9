package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/metrics"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyOpen = errors.New("consumer is already open")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender delivers one email to its recipient.
type Sender interface {
	Send(ctx context.Context, msg entity.EmailMessage) error
}

// Consumer reads email requests from the topic under a consumer group and
// hands them to a bounded pool of senders. Offsets are committed once a
// message is queued, so delivery is at least once.
type Consumer struct {
	reader messageReader
	sender Sender
	pool   *Pool
	cfg    config.MailConfig
	logger logrus.FieldLogger

	mu     sync.Mutex
	opened bool
	closed bool
}

func NewConsumer(kafkaCfg config.KafkaConfig, mailCfg config.MailConfig, sender Sender, logger logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkaCfg.Brokers,
		GroupID:  kafkaCfg.GroupID,
		Topic:    kafkaCfg.EmailTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, sender, mailCfg, logger)
}

func NewConsumerWithReader(reader messageReader, sender Sender, cfg config.MailConfig, logger logrus.FieldLogger) *Consumer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Consumer{
		reader: reader,
		sender: sender,
		cfg:    cfg,
		logger: logger.WithField("component", "email_consumer"),
	}
	c.pool = NewPool(cfg.Workers, cfg.QueueSize, c.deliver)
	return c
}

// Open starts the sender pool. A second call fails with ErrAlreadyOpen.
func (c *Consumer) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return ErrAlreadyOpen
	}
	c.opened = true
	c.pool.Start(ctx)
	return nil
}

// Close stops fetching and waits for queued sends until ctx ends. It is a
// no-op before Open and after the first call.
func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.opened || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	readerErr := c.reader.Close()
	if err := c.pool.Stop(ctx); err != nil {
		c.logger.WithError(err).Warn("Abandoned in-flight emails on shutdown")
		return err
	}
	if readerErr != nil {
		return fmt.Errorf("close reader: %w", readerErr)
	}
	return nil
}

// Run consumes until ctx is cancelled. It opens the consumer itself and always
// closes it, allowing cfg.DrainTimeout for queued sends.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DrainTimeout)
		defer cancel()
		_ = c.Close(drainCtx)
	}()

	c.logger.Info("Email consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Email consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch email message: %w", err)
		}

		email, err := decodeEmail(msg.Value)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("Dropping malformed email message")
		} else if err := c.pool.Submit(ctx, email); err != nil {
			// A concurrent Close stops the pool; the message stays uncommitted.
			if ctx.Err() != nil || errors.Is(err, ErrPoolStopped) {
				c.logger.Info("Email consumer stopped")
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).WithField("offset", msg.Offset).Error("Failed to commit email message")
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg entity.EmailMessage) {
	sendCtx := ctx
	if c.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	err := c.sender.Send(sendCtx, msg)
	metrics.EmailsSentTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		c.logger.WithError(err).WithField("email", msg.Email).Error("Failed to send email")
		return
	}
	c.logger.WithField("email", msg.Email).Info("Email sent")
}

func decodeEmail(payload []byte) (entity.EmailMessage, error) {
	var msg entity.EmailMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("decode email message: %w", err)
	}
	if msg.Email == "" {
		return msg, errors.New("email message has no recipient")
	}
	return msg, nil
}
