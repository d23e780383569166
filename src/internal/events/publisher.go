package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/darkelleven/agrochain/src/internal/httpclient"
)

// Sink delivers envelopes to one destination.
type Sink interface {
	Send(ctx context.Context, envelope Envelope) error
	Close() error
}

const (
	DefaultQueueSize = 1024
	deliveryTimeout  = 30 * time.Second
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrClosed    = errors.New("publisher closed")
)

// Publisher stamps events into envelopes and logs them. Delivery to sinks
// happens on a background goroutine fed by a bounded queue, so Publish never
// waits on a sink.
type Publisher struct {
	source string
	sinks  []Sink
	queue  chan Envelope
	done   chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewPublisher creates a new event publisher with the default queue size
func NewPublisher(source string, sinks ...Sink) *Publisher {
	return NewPublisherWithQueue(source, DefaultQueueSize, sinks...)
}

// NewPublisherWithQueue creates a publisher whose queue holds up to size pending envelopes.
func NewPublisherWithQueue(source string, size int, sinks ...Sink) *Publisher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	p := &Publisher{
		source: source,
		sinks:  sinks,
		queue:  make(chan Envelope, size),
		done:   make(chan struct{}),
	}
	if len(sinks) == 0 {
		close(p.done)
		return p
	}
	go p.run()
	return p
}

// Publish logs the event and queues it for the sinks. key is the entity the
// event is about and becomes the partition key downstream. It returns
// ErrQueueFull instead of blocking when delivery has fallen behind.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, data map[string]any) error {
	now := time.Now().UTC()
	envelope := Envelope{
		EventID:        generateEventID(),
		EventType:      eventType,
		SchemaVersion:  "1.0",
		IdempotencyKey: fmt.Sprintf("%s_%s_%d", eventType, key, now.UnixNano()),
		Key:            key,
		Timestamp:      now,
		Source:         p.source,
		Data:           data,
	}

	slog.InfoContext(ctx, "event_published",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"key", envelope.Key,
		"source", envelope.Source,
	)

	if len(p.sinks) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%w: dropped %s", ErrClosed, eventType)
	}
	select {
	case p.queue <- envelope:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, eventType)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for envelope := range p.queue {
		p.deliver(envelope)
	}
}

func (p *Publisher) deliver(envelope Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	for _, sink := range p.sinks {
		if err := sink.Send(ctx, envelope); err != nil {
			slog.Warn("event_delivery_failed",
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"key", envelope.Key,
				"error", err,
			)
		}
	}
}

// Close stops accepting events, drains the queue, and closes every sink.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		if len(p.sinks) > 0 {
			close(p.queue)
		}
		p.mu.Unlock()
		<-p.done

		var errs []error
		for _, sink := range p.sinks {
			if err := sink.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// WebhookSink posts each envelope as JSON to a fixed URL.
type WebhookSink struct {
	url    string
	client *httpclient.Client
}

func NewWebhookSink(url string, client *httpclient.Client) *WebhookSink {
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Send(ctx context.Context, envelope Envelope) error {
	headers := map[string]string{
		"X-Event-ID":   envelope.EventID,
		"X-Event-Type": envelope.EventType,
	}
	if err := s.client.PostJSON(ctx, s.url, envelope, headers, nil); err != nil {
		slog.WarnContext(ctx, "webhook_failed",
			"url", s.url,
			"event_type", envelope.EventType,
			"error", err,
		)
		return fmt.Errorf("webhook %s: %w", envelope.EventType, err)
	}
	return nil
}

func (s *WebhookSink) Close() error {
	return nil
}

func generateEventID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "evt_" + hex.EncodeToString(b[:])
}
