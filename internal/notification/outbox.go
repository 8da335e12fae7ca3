package notification

import (
	"context"
	"sync"
	"time"

	"cediman-be/internal/logger"
	"cediman-be/internal/metrics"

	"go.uber.org/zap"
)

type OutboxConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	SendTimeout time.Duration
}

func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		QueueSize:   256,
		Workers:     2,
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		SendTimeout: 20 * time.Second,
	}
}

type envelope struct {
	msg       Message
	requestID string
}

type OutboxStats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Retried uint64 `json:"retried"`
	// ByKind splits outcomes per channel, keyed "email/sent", "sms/failed".
	ByKind   map[string]uint64      `json:"byKind"`
	Delivery metrics.LatencySummary `json:"delivery"`
}

const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
	outcomeRetried = "retried"
)

// Outbox delivers messages on background workers after the caller's state
// change has been committed. Delivery failures are logged and counted only.
type Outbox struct {
	sender Sender
	cfg    OutboxConfig
	queue  chan envelope

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent    metrics.Counter
	failed  metrics.Counter
	dropped metrics.Counter
	retried metrics.Counter
	byKind  metrics.CounterSet
	latency metrics.Latency
}

func (o *Outbox) record(kind Kind, outcome string) {
	switch outcome {
	case outcomeSent:
		o.sent.Inc()
	case outcomeFailed:
		o.failed.Inc()
	case outcomeDropped:
		o.dropped.Inc()
	case outcomeRetried:
		o.retried.Inc()
	}
	o.byKind.Inc(string(kind), outcome)
}

func NewOutbox(sender Sender, cfg OutboxConfig) *Outbox {
	def := DefaultOutboxConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	return &Outbox{
		sender: sender,
		cfg:    cfg,
		queue:  make(chan envelope, cfg.QueueSize),
	}
}

// Start launches the workers. ctx bounds retry waits; Close drains the queue.
func (o *Outbox) Start(ctx context.Context) {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.work(ctx, i)
	}
}

func (o *Outbox) Dispatch(ctx context.Context, msg Message) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		o.record(msg.Kind, outcomeDropped)
		return ErrOutboxClosed
	}

	select {
	case o.queue <- envelope{msg: msg, requestID: logger.RequestIDFrom(ctx)}:
		return nil
	default:
		o.record(msg.Kind, outcomeDropped)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be attempted.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()

	stats := o.Stats()
	logger.L().Info("notification outbox closed",
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped),
	)
}

func (o *Outbox) Stats() OutboxStats {
	return OutboxStats{
		Sent:     o.sent.Load(),
		Failed:   o.failed.Load(),
		Dropped:  o.dropped.Load(),
		Retried:  o.retried.Load(),
		ByKind:   o.byKind.Snapshot(),
		Delivery: o.latency.Summary(),
	}
}

func (o *Outbox) work(ctx context.Context, id int) {
	defer o.wg.Done()

	for env := range o.queue {
		o.deliver(ctx, id, env)
	}
}

func (o *Outbox) deliver(ctx context.Context, worker int, env envelope) {
	log := logger.FromCtx(logger.WithRequestID(context.Background(), env.requestID)).With(
		zap.String("layer", "notification"),
		zap.Int("worker", worker),
		zap.String("kind", string(env.msg.Kind)),
		zap.String("order_id", env.msg.OrderID),
	)

	backoff := o.cfg.BaseBackoff
	timer := metrics.StartTimer()

	for attempt := 1; ; attempt++ {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SendTimeout)
		err := o.sender.Send(sendCtx, env.msg)
		cancel()

		if err == nil {
			o.record(env.msg.Kind, outcomeSent)
			o.latency.Observe(timer.Duration())
			log.Info("notification delivered",
				zap.Int("attempt", attempt),
				zap.Duration("duration", timer.Duration()),
			)
			return
		}

		if attempt >= o.cfg.MaxAttempts {
			o.record(env.msg.Kind, outcomeFailed)
			log.Error("notification failed", zap.Int("attempts", attempt), zap.Error(err))
			return
		}

		o.record(env.msg.Kind, outcomeRetried)
		log.Warn("notification attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			o.record(env.msg.Kind, outcomeFailed)
			log.Error("notification abandoned on shutdown", zap.Error(err))
			return
		}
		backoff *= 2
	}
}
