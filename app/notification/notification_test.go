package notification_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/mailer"
	"github.com/vibast-solutions/ms-go-credentials/app/notification"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

// broker is an in-memory stand-in for one topic partition with one consumer group.
type broker struct {
	mu        sync.Mutex
	messages  chan kafka.Message
	offset    int64
	committed []int64
	closed    chan struct{}
	closeOnce sync.Once
	writeErr  error
}

func newBroker() *broker {
	return &broker{
		messages: make(chan kafka.Message, 32),
		closed:   make(chan struct{}),
	}
}

func (b *broker) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	for _, msg := range msgs {
		msg.Offset = b.offset
		b.offset++
		b.messages <- msg
	}
	return nil
}

func (b *broker) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-b.messages:
		return msg, nil
	case <-b.closed:
		return kafka.Message{}, io.EOF
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (b *broker) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range msgs {
		b.committed = append(b.committed, msg.Offset)
	}
	return nil
}

func (b *broker) commits() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.committed...)
}

func (b *broker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []entity.EmailMessage
	delay time.Duration
	err   error
	calls chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{calls: make(chan struct{}, 64)}
}

func (s *recordingSender) Send(ctx context.Context, msg entity.EmailMessage) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			s.calls <- struct{}{}
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.calls <- struct{}{}
	return s.err
}

func (s *recordingSender) messages() []entity.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.EmailMessage(nil), s.sent...)
}

func (s *recordingSender) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d of %d", i+1, n)
		}
	}
}

func mailConfig() config.MailConfig {
	return config.MailConfig{
		Workers:      2,
		QueueSize:    4,
		DrainTimeout: time.Second,
		SendTimeout:  time.Second,
	}
}

func runConsumer(t *testing.T, c *notification.Consumer) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop")
		return nil
	}
}

func TestPublishedEmailIsSentOnce(t *testing.T) {
	b := newBroker()
	logger, _ := test.NewNullLogger()
	producer := notification.NewProducerWithWriter(b, logger)
	sender := newRecordingSender()
	consumer := notification.NewConsumerWithReader(b, sender, mailConfig(), logger)

	cancel, done := runConsumer(t, consumer)

	msg := entity.EmailMessage{
		Email:   "alice@example.com",
		Subject: "Verification code for alice@example.com",
		Body:    "Go to https://auth.example.com/api/auth/verify?code=c&email=alice%40example.com",
	}
	require.NoError(t, producer.SendEmail(context.Background(), msg))

	sender.waitCalls(t, 1)
	cancel()
	require.NoError(t, waitRun(t, done))

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, msg, sent[0])
	assert.Equal(t, []int64{0}, b.commits())
}

func TestProducerEncodesPayloadAndKey(t *testing.T) {
	b := newBroker()
	producer := notification.NewProducerWithWriter(b, nil)

	msg := entity.EmailMessage{Email: "bob@example.com", Subject: "s", Body: "b"}
	require.NoError(t, producer.SendEmail(context.Background(), msg))

	written := <-b.messages
	assert.Equal(t, "bob@example.com", string(written.Key))
	assert.JSONEq(t, `{"email":"bob@example.com","subject":"s","body":"b"}`, string(written.Value))
}

func TestProducerPropagatesWriteError(t *testing.T) {
	b := newBroker()
	b.writeErr = errors.New("leader not available")
	producer := notification.NewProducerWithWriter(b, nil)

	err := producer.SendEmail(context.Background(), entity.EmailMessage{Email: "bob@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, b.writeErr)
}

func TestConsumerSkipsMalformedMessages(t *testing.T) {
	b := newBroker()
	logger, hook := test.NewNullLogger()
	sender := newRecordingSender()
	consumer := notification.NewConsumerWithReader(b, sender, mailConfig(), logger)

	require.NoError(t, b.WriteMessages(context.Background(),
		kafka.Message{Value: []byte("not json")},
		kafka.Message{Value: []byte(`{"subject":"no recipient"}`)},
	))
	valid, err := json.Marshal(entity.EmailMessage{Email: "carol@example.com", Subject: "hi", Body: "there"})
	require.NoError(t, err)
	require.NoError(t, b.WriteMessages(context.Background(), kafka.Message{Value: valid}))

	cancel, done := runConsumer(t, consumer)
	sender.waitCalls(t, 1)
	cancel()
	require.NoError(t, waitRun(t, done))

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "carol@example.com", sent[0].Email)
	assert.Equal(t, []int64{0, 1, 2}, b.commits())

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Dropping malformed email message" {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestConsumerSendFailureDoesNotStopLoop(t *testing.T) {
	b := newBroker()
	sender := newRecordingSender()
	sender.err = errors.New("relay refused")
	consumer := notification.NewConsumerWithReader(b, sender, mailConfig(), nil)

	cancel, done := runConsumer(t, consumer)
	producer := notification.NewProducerWithWriter(b, nil)
	for _, to := range []string{"a@example.com", "b@example.com"} {
		require.NoError(t, producer.SendEmail(context.Background(), entity.EmailMessage{Email: to}))
	}

	sender.waitCalls(t, 2)
	cancel()
	require.NoError(t, waitRun(t, done))
	assert.Len(t, sender.messages(), 2)
}

func TestConsumerOpenCloseLifecycle(t *testing.T) {
	b := newBroker()
	consumer := notification.NewConsumerWithReader(b, newRecordingSender(), mailConfig(), nil)
	ctx := context.Background()

	require.NoError(t, consumer.Close(ctx), "close before open is a no-op")
	require.NoError(t, consumer.Open(ctx))
	assert.ErrorIs(t, consumer.Open(ctx), notification.ErrAlreadyOpen)
	require.NoError(t, consumer.Close(ctx))
	require.NoError(t, consumer.Close(ctx))

	_, err := b.FetchMessage(ctx)
	assert.ErrorIs(t, err, io.EOF, "reader must be closed")
}

func TestConsumerRunStopsWhenReaderCloses(t *testing.T) {
	b := newBroker()
	consumer := notification.NewConsumerWithReader(b, newRecordingSender(), mailConfig(), nil)

	_, done := runConsumer(t, consumer)
	require.NoError(t, b.Close())
	assert.NoError(t, waitRun(t, done))
}

func TestPoolDrainsQueueOnStop(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	pool := notification.NewPool(1, 8, func(_ context.Context, msg entity.EmailMessage) {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, msg.Email)
		mu.Unlock()
	})

	ctx := context.Background()
	pool.Start(ctx)
	for _, to := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Submit(ctx, entity.EmailMessage{Email: to}))
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	assert.ErrorIs(t, pool.Submit(ctx, entity.EmailMessage{Email: "d"}), notification.ErrPoolStopped)
}

func TestPoolStopAbandonsAfterDeadline(t *testing.T) {
	cancelled := make(chan struct{})
	pool := notification.NewPool(1, 1, func(ctx context.Context, _ entity.EmailMessage) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx := context.Background()
	pool.Start(ctx)
	require.NoError(t, pool.Submit(ctx, entity.EmailMessage{Email: "slow"}))

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(stopCtx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight handler was not cancelled")
	}
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	pool := notification.NewPool(1, 1, func(context.Context, entity.EmailMessage) {
		<-release
	})

	ctx := context.Background()
	pool.Start(ctx)
	defer func() {
		close(release)
		_ = pool.Stop(ctx)
	}()

	require.NoError(t, pool.Submit(ctx, entity.EmailMessage{Email: "in-flight"}))
	// Wait until the worker has taken the first message off the queue.
	require.Eventually(t, func() bool {
		fillCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
		defer cancel()
		return pool.Submit(fillCtx, entity.EmailMessage{Email: "queued"}) == nil
	}, time.Second, time.Millisecond)

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(blockedCtx, entity.EmailMessage{Email: "overflow"}), context.DeadlineExceeded)
}

// stalledRelay is an SMTP client whose sends never finish on their own.
type stalledRelay struct {
	started chan struct{}
	release chan struct{}
}

func (r *stalledRelay) DialWithContext(context.Context) error { return nil }

func (r *stalledRelay) Send(...*mail.Msg) error {
	r.started <- struct{}{}
	<-r.release
	return nil
}

func (r *stalledRelay) Close() error { return nil }

func TestShutdownDoesNotWaitOnStalledRelay(t *testing.T) {
	relay := &stalledRelay{started: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(relay.release)

	smtp := mailer.NewSMTPMailer(
		config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "robot@example.com"},
		nil,
		mailer.WithClientFactory(func(config.SMTPConfig) (mailer.Client, error) { return relay, nil }),
	)

	b := newBroker()
	cfg := config.MailConfig{
		Workers:      1,
		QueueSize:    1,
		DrainTimeout: 100 * time.Millisecond,
		SendTimeout:  100 * time.Millisecond,
	}
	consumer := notification.NewConsumerWithReader(b, smtp, cfg, nil)

	cancel, done := runConsumer(t, consumer)
	producer := notification.NewProducerWithWriter(b, nil)
	require.NoError(t, producer.SendEmail(context.Background(), entity.EmailMessage{
		Email:   "alice@example.com",
		Subject: "Verification code for alice@example.com",
		Body:    "code",
	}))

	select {
	case <-relay.started:
	case <-time.After(2 * time.Second):
		t.Fatal("send never reached the relay")
	}
	cancel()
	require.NoError(t, waitRun(t, done))

	closed := make(chan error, 1)
	go func() { closed <- smtp.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("closing the mailer waited on the stalled send")
	}
}

// closingReader closes the consumer from inside the first fetch, as a
// concurrent shutdown would between a fetch and its submit.
type closingReader struct {
	*broker
	consumer *notification.Consumer
	once     sync.Once
}

func (r *closingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	msg, err := r.broker.FetchMessage(ctx)
	r.once.Do(func() {
		_ = r.consumer.Close(context.Background())
	})
	return msg, err
}

func TestRunTreatsConcurrentCloseAsStop(t *testing.T) {
	b := newBroker()
	payload, err := json.Marshal(entity.EmailMessage{Email: "dave@example.com"})
	require.NoError(t, err)
	require.NoError(t, b.WriteMessages(context.Background(), kafka.Message{Value: payload}))

	reader := &closingReader{broker: b}
	consumer := notification.NewConsumerWithReader(reader, newRecordingSender(), mailConfig(), nil)
	reader.consumer = consumer

	_, done := runConsumer(t, consumer)
	assert.NoError(t, waitRun(t, done))
	assert.Empty(t, b.commits(), "message submitted after close must stay uncommitted")
}
