// Package message defines the inbound message envelope and the ingestion
// queue shared by every gateway.
//
// A RawMessage is built by a gateway's listener when a transport delivers a
// payload. It carries the payload untouched plus the routing metadata needed
// downstream: the owning gateway, the routing key (topic, subject or
// channel) and the transport family. Interpretation of the payload happens
// later, outside this package.
//
// # Architecture
//
//	MQTT / NATS / Redis listener ──Put──▶ Queue ──Take──▶ ingest workers
//
// There is exactly one Queue per process. It is created at startup, handed
// to every producer and consumer, closed at shutdown and drained.
//
// # Overflow Policies
//
// The queue is always bounded. When it is full, Put behaves according to
// the configured policy:
//
//   - block (default): wait up to PutTimeout for space, then drop the
//     message and return ErrQueueFull
//   - drop_oldest: evict the oldest queued message and admit the new one
//   - reject: return ErrQueueFull immediately
//
// No policy blocks a producer for longer than PutTimeout, so a stalled
// consumer can never wedge a transport's delivery goroutine.
//
// # Usage
//
//	q, err := message.NewQueue(message.QueueConfig{Capacity: 10000}, registry)
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
//
//	msg := message.New(7, []byte("23.5"), "sensor/1/temp", message.NetworkMQTT)
//	if err := q.Put(msg); err != nil {
//	    log.Warn("message dropped", "error", err)
//	}
//
//	next, err := q.Take(ctx)
package message
