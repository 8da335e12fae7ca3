package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cediman-be/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.records = append(f.records, r)
	promise(r, f.err)
}

func (f *fakeProducer) Close() {
	f.closed = true
}

// stalledProducer behaves like a client whose broker never answers: records
// wait in a bounded buffer and are refused with ErrMaxBuffered once it fills.
type stalledProducer struct {
	mu      sync.Mutex
	limit   int
	pending []func(*kgo.Record, error)
}

func (s *stalledProducer) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	s.mu.Lock()
	if len(s.pending) >= s.limit {
		s.mu.Unlock()
		promise(r, kgo.ErrMaxBuffered)
		return
	}
	s.pending = append(s.pending, promise)
	s.mu.Unlock()
}

func (s *stalledProducer) Close() {}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Topic: "order-status"})
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)
	assert.NoError(t, p.PublishStatusChanged(context.Background(), StatusChanged{}))
	p.Close()
}

func TestKafkaPublisher_PublishStatusChanged(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := StatusChanged{OrderID: "ORD-1", From: "confirmed", To: "submitted", At: at}

	t.Run("Builds record", func(t *testing.T) {
		fp := &fakeProducer{}
		p := newKafkaPublisher(fp, "order-status")

		require.NoError(t, p.PublishStatusChanged(context.Background(), ev))
		require.Len(t, fp.records, 1)

		r := fp.records[0]
		assert.Equal(t, "order-status", r.Topic)
		assert.Equal(t, []byte("ORD-1"), r.Key)
		assert.Equal(t, at, r.Timestamp)
		assert.Equal(t, []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventStatusChanged)},
			{Key: "version", Value: []byte(SchemaVersion)},
		}, r.Headers)

		var decoded StatusChanged
		require.NoError(t, json.Unmarshal(r.Value, &decoded))
		assert.Equal(t, ev, decoded)

		p.Close()
		assert.True(t, fp.closed)
	})

	t.Run("Produce failure is logged only", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		defer logger.Replace(zap.New(core))()

		fp := &fakeProducer{err: errors.New("broker unreachable")}
		p := newKafkaPublisher(fp, "order-status")

		assert.NoError(t, p.PublishStatusChanged(context.Background(), ev))
		assert.Equal(t, 1, logs.FilterMessage("failed to produce status event").Len())
	})
}

func TestKafkaPublisher_StalledBrokerDoesNotBlock(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	defer logger.Replace(zap.New(core))()

	sp := &stalledProducer{limit: 2}
	p := newKafkaPublisher(sp, "order-status")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = p.PublishStatusChanged(context.Background(), StatusChanged{OrderID: "ORD-1", To: "processing"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a stalled broker")
	}

	assert.Len(t, sp.pending, 2)
	assert.Equal(t, 3, logs.FilterMessage("status event dropped, producer buffer full").Len())
}

func TestKafkaPublisher_CanceledRequestContext(t *testing.T) {
	var got context.Context
	fp := &ctxProducer{seen: &got}
	p := newKafkaPublisher(fp, "order-status")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.PublishStatusChanged(ctx, StatusChanged{OrderID: "ORD-1"}))
	require.NotNil(t, got)
	assert.NoError(t, got.Err())
}

type ctxProducer struct {
	seen *context.Context
}

func (c *ctxProducer) TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	*c.seen = ctx
	promise(r, nil)
}

func (c *ctxProducer) Close() {}
