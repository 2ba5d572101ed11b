package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/agrostore/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type fakeClearer struct {
	mu      sync.Mutex
	cleared []string
	err     error
	// failures is how many calls fail with err before clearing works again;
	// zero with err set means every call fails.
	failures int
	calls    int
}

func (f *fakeClearer) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		err := f.err
		if f.failures > 0 {
			f.failures--
			if f.failures == 0 {
				f.err = nil
			}
		}
		return err
	}
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeClearer) Cleared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

type fakeReader struct {
	msgs      []kafkaGo.Message
	committed []kafkaGo.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafkaGo.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func orderPaidMessage(t *testing.T, userID string) kafkaGo.Message {
	payload, err := json.Marshal(domain.OrderPaidEvent{
		OrderID:     "order-1",
		UserID:      userID,
		TotalAmount: 12448,
		Currency:    "usd",
	})
	require.NoError(t, err)
	return kafkaGo.Message{
		Key:     []byte("order-1"),
		Value:   payload,
		Headers: []kafkaGo.Header{{Key: "event_type", Value: []byte(domain.EventTypeOrderPaid)}},
	}
}

func TestPoll_ClearsCartAndCommits(t *testing.T) {
	clearer := &fakeClearer{}
	reader := &fakeReader{msgs: []kafkaGo.Message{orderPaidMessage(t, "user-1")}}
	p := &Poller{carts: clearer, reader: reader, log: zap.NewNop()}

	p.poll(context.Background())

	assert.DeepEqual(t, []string{"user-1"}, clearer.Cleared())
	assert.Equal(t, 1, len(reader.committed))
}

func TestPoll_ClearFailureIsNotCommitted(t *testing.T) {
	clearer := &fakeClearer{err: errors.New("mongo down")}
	reader := &fakeReader{msgs: []kafkaGo.Message{orderPaidMessage(t, "user-1")}}
	p := &Poller{carts: clearer, reader: reader, log: zap.NewNop(), retry: &backoff.ZeroBackOff{}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.poll(ctx)

	assert.Equal(t, 0, len(reader.committed))
	assert.Assert(t, clearer.calls > 1)
}

func TestPoll_RetriesFailedClearBeforeNextMessage(t *testing.T) {
	clearer := &fakeClearer{err: errors.New("mongo down"), failures: 3}
	first := orderPaidMessage(t, "user-1")
	first.Offset = 10
	second := orderPaidMessage(t, "user-2")
	second.Offset = 11
	reader := &fakeReader{msgs: []kafkaGo.Message{first, second}}
	p := &Poller{carts: clearer, reader: reader, log: zap.NewNop(), retry: &backoff.ZeroBackOff{}}

	ctx := context.Background()
	p.poll(ctx)
	p.poll(ctx)

	assert.DeepEqual(t, []string{"user-1", "user-2"}, clearer.Cleared())
	assert.Equal(t, 2, len(reader.committed))
	assert.Equal(t, int64(10), reader.committed[0].Offset)
	assert.Equal(t, int64(11), reader.committed[1].Offset)
}

func TestHandle_SkipsOtherEventsAndGarbage(t *testing.T) {
	clearer := &fakeClearer{}
	p := &Poller{carts: clearer, log: zap.NewNop()}
	ctx := context.Background()

	other := orderPaidMessage(t, "user-1")
	other.Headers = []kafkaGo.Header{{Key: "event_type", Value: []byte("order.shipped")}}
	assert.NilError(t, p.handle(ctx, other))

	garbage := orderPaidMessage(t, "user-1")
	garbage.Value = []byte("{not json")
	assert.NilError(t, p.handle(ctx, garbage))

	assert.NilError(t, p.handle(ctx, orderPaidMessage(t, "")))
	assert.Equal(t, 0, len(clearer.Cleared()))
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	topic := "order-events"
	createTopic(t, broker, topic)

	clearer := &fakeClearer{}
	poller := NewPoller(clearer, zap.NewNop(), topic, broker)
	defer poller.Close()

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	require.NoError(t, w.WriteMessages(ctx, orderPaidMessage(t, "123")))
	w.Close()

	go poller.Run(ctx)
	require.Eventually(t, func() bool {
		return len(clearer.Cleared()) == 1
	}, 30*time.Second, 500*time.Millisecond)
	assert.Equal(t, "123", clearer.Cleared()[0])
}
