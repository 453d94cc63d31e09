package queue

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/storefront/identity-api/internal/api/metrics"
	"github.com/storefront/identity-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Mailer is the fire-and-forget lane for outbound email. Messages are routed
// to a fixed set of workers by consistent hashing on the recipient, so mails
// to the same address are delivered in the order they were enqueued.
//
// Mailer itself satisfies ports.Notifier: Send enqueues and returns
// immediately, and delivery failures are logged by the worker, never
// surfaced to the operation that triggered the send.
type Mailer struct {
	workers []chan ports.EmailMessage
	sender  ports.Notifier
	log     zerolog.Logger
}

// NewMailer creates a Mailer with numWorkers sharded workers delivering
// through sender. If numWorkers <= 0, defaultWorkers is used.
func NewMailer(numWorkers int, sender ports.Notifier, log zerolog.Logger) *Mailer {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	m := &Mailer{
		workers: make([]chan ports.EmailMessage, numWorkers),
		sender:  sender,
		log:     log,
	}
	for i := range m.workers {
		m.workers[i] = make(chan ports.EmailMessage, channelBuffer)
	}
	return m
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (m *Mailer) Start(ctx context.Context) {
	for i, ch := range m.workers {
		go m.runWorker(ctx, i, ch)
	}
}

// Stop closes the worker queues. Call only after the last Send: enqueueing
// into a stopped Mailer panics.
func (m *Mailer) Stop() {
	for _, ch := range m.workers {
		close(ch)
	}
}

// Send enqueues a message for background delivery. Blocks only when the
// responsible worker's buffer is full.
func (m *Mailer) Send(_ context.Context, msg ports.EmailMessage) error {
	id := m.shardIndex(msg.To)
	m.workers[id] <- msg
	metrics.MailQueueDepth.WithLabelValues(fmt.Sprint(id)).Set(float64(len(m.workers[id])))
	return nil
}

// shardIndex maps a recipient deterministically to a worker index.
func (m *Mailer) shardIndex(recipient string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return int(h.Sum32()) % len(m.workers)
}

func (m *Mailer) runWorker(ctx context.Context, id int, ch <-chan ports.EmailMessage) {
	worker := fmt.Sprint(id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			metrics.MailQueueDepth.WithLabelValues(worker).Set(float64(len(ch)))
			if err := m.sender.Send(ctx, msg); err != nil {
				metrics.EmailsSentTotal.WithLabelValues(msg.Kind, "error").Inc()
				m.log.Error().Err(err).
					Str("to", msg.To).
					Str("kind", msg.Kind).
					Int("worker_id", id).
					Msg("email delivery failed")
				continue
			}
			metrics.EmailsSentTotal.WithLabelValues(msg.Kind, "ok").Inc()
			m.log.Debug().Str("to", msg.To).Str("kind", msg.Kind).Msg("email delivered")
		}
	}
}
