package message

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OverflowPolicy selects what Put does when the queue is at capacity.
type OverflowPolicy string

// Overflow policies.
const (
	// PolicyBlock waits up to PutTimeout for space, then drops the new message.
	PolicyBlock OverflowPolicy = "block"

	// PolicyDropOldest evicts the oldest queued message to admit the new one.
	PolicyDropOldest OverflowPolicy = "drop_oldest"

	// PolicyReject drops the new message immediately.
	PolicyReject OverflowPolicy = "reject"
)

// Queue defaults.
const (
	DefaultCapacity   = 10000
	DefaultPutTimeout = 250 * time.Millisecond
)

// ParseOverflowPolicy converts a configuration string to an OverflowPolicy.
// An empty string yields PolicyBlock.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyBlock, nil
	case PolicyBlock, PolicyDropOldest, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Capacity is the maximum number of queued messages. Must be positive.
	Capacity int

	// Policy is applied when the queue is full. Defaults to PolicyBlock.
	Policy OverflowPolicy

	// PutTimeout bounds how long Put waits under PolicyBlock.
	// Defaults to DefaultPutTimeout.
	PutTimeout time.Duration

	// Logger receives a warning for every message evicted under
	// PolicyDropOldest. Optional.
	Logger Logger
}

// Logger is the logging interface used by Queue.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Stats is a point-in-time view of queue counters.
type Stats struct {
	Len      int            `json:"len"`
	Cap      int            `json:"cap"`
	Policy   OverflowPolicy `json:"policy"`
	Puts     uint64         `json:"puts"`
	Takes    uint64         `json:"takes"`
	Dropped  uint64         `json:"dropped"`
	Rejected uint64         `json:"rejected"`
	Closed   bool           `json:"closed"`
}

// Queue is the bounded FIFO that carries RawMessages from gateway listeners
// to ingest workers.
//
// Queue is safe for concurrent use by any number of producers and consumers.
// The items channel is never closed; closure is signalled on separate
// channels so a late Put cannot panic. stop refuses new admissions; done
// is closed once no Put can still be admitting.
type Queue struct {
	items      chan RawMessage
	stop       chan struct{}
	done       chan struct{}
	admit      sync.RWMutex // held shared by Put, exclusively by Close
	closeOnce  sync.Once
	policy     OverflowPolicy
	putTimeout time.Duration
	metrics    *queueMetrics
	logger     Logger

	// evictRounds bounds putEvicting so competing producers cannot spin
	// forever.
	evictRounds int

	puts     atomic.Uint64
	takes    atomic.Uint64
	dropped  atomic.Uint64
	rejected atomic.Uint64
}

// NewQueue creates a bounded queue.
//
// Parameters:
//   - cfg: Capacity, overflow policy and put timeout
//   - reg: Prometheus registerer for queue metrics (nil disables registration)
//
// Returns:
//   - *Queue: Ready for use
//   - error: ErrInvalidCapacity or ErrUnknownPolicy on bad configuration,
//     or a metrics registration error
func NewQueue(cfg QueueConfig, reg prometheus.Registerer) (*Queue, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, cfg.Capacity)
	}

	policy, err := ParseOverflowPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}

	putTimeout := cfg.PutTimeout
	if putTimeout <= 0 {
		putTimeout = DefaultPutTimeout
	}

	m, err := newQueueMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering queue metrics: %w", err)
	}
	m.capacity.Set(float64(cfg.Capacity))

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Queue{
		items:      make(chan RawMessage, cfg.Capacity),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		policy:     policy,
		putTimeout: putTimeout,
		metrics:    m,
		logger:     logger,

		evictRounds: cfg.Capacity + 1,
	}, nil
}

// Put admits msg according to the overflow policy.
//
// Returns:
//   - nil: msg was admitted
//   - ErrQueueFull: msg was dropped (timeout, reject, or eviction lost to
//     competing producers)
//   - ErrQueueClosed: the queue no longer admits messages
func (q *Queue) Put(msg RawMessage) error {
	q.admit.RLock()
	defer q.admit.RUnlock()

	if q.isClosed() {
		q.recordDrop(DropReasonClosed)
		return ErrQueueClosed
	}

	// Fast path: space available.
	select {
	case q.items <- msg:
		q.recordPut()
		return nil
	default:
	}

	switch q.policy {
	case PolicyReject:
		q.rejected.Add(1)
		q.recordDrop(DropReasonRejected)
		return ErrQueueFull

	case PolicyDropOldest:
		return q.putEvicting(msg)

	default:
		return q.putWaiting(msg)
	}
}

func (q *Queue) putWaiting(msg RawMessage) error {
	timer := time.NewTimer(q.putTimeout)
	defer timer.Stop()

	select {
	case q.items <- msg:
		q.recordPut()
		return nil
	case <-q.stop:
		q.recordDrop(DropReasonClosed)
		return ErrQueueClosed
	case <-timer.C:
		q.recordDrop(DropReasonTimeout)
		return ErrQueueFull
	}
}

func (q *Queue) putEvicting(msg RawMessage) error {
	for range q.evictRounds {
		select {
		case q.items <- msg:
			q.recordPut()
			return nil
		default:
		}

		select {
		case old := <-q.items:
			q.recordDrop(DropReasonEvicted)
			q.logger.Warn("ingest queue full, evicted oldest message",
				"message_id", old.ID(),
				"gateway_id", old.GatewayID(),
				"sub_data", old.SubData(),
			)
		default:
		}
	}

	q.recordDrop(DropReasonContended)
	return ErrQueueFull
}

// Take removes and returns the oldest message, blocking until one is
// available.
//
// Returns ctx.Err() if ctx is done first, or ErrQueueClosed once the queue
// has been closed and fully drained.
func (q *Queue) Take(ctx context.Context) (RawMessage, error) {
	select {
	case msg := <-q.items:
		q.recordTake()
		return msg, nil
	default:
	}

	select {
	case msg := <-q.items:
		q.recordTake()
		return msg, nil
	case <-ctx.Done():
		return RawMessage{}, ctx.Err()
	case <-q.done:
		if msg, ok := q.TryTake(); ok {
			return msg, nil
		}
		return RawMessage{}, ErrQueueClosed
	}
}

// TryTake removes and returns the oldest message without blocking.
func (q *Queue) TryTake() (RawMessage, bool) {
	select {
	case msg := <-q.items:
		q.recordTake()
		return msg, true
	default:
		return RawMessage{}, false
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.items) }

// Policy returns the configured overflow policy.
func (q *Queue) Policy() OverflowPolicy { return q.policy }

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Len:      q.Len(),
		Cap:      q.Cap(),
		Policy:   q.policy,
		Puts:     q.puts.Load(),
		Takes:    q.takes.Load(),
		Dropped:  q.dropped.Load(),
		Rejected: q.rejected.Load(),
		Closed:   q.isClosed(),
	}
}

// Close stops admitting messages. Messages already queued stay available
// to Take. Close returns once every in-flight Put has finished, so nothing
// is admitted after consumers observe Done. Close is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.stop)
		q.admit.Lock()
		close(q.done)
		q.admit.Unlock()
	})
}

// Done returns a channel closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) isClosed() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

func (q *Queue) recordPut() {
	q.puts.Add(1)
	q.metrics.recordPut(len(q.items))
}

func (q *Queue) recordTake() {
	q.takes.Add(1)
	q.metrics.recordTake(len(q.items))
}

func (q *Queue) recordDrop(reason string) {
	q.dropped.Add(1)
	q.metrics.recordDrop(reason)
}
