package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darkelleven/agrochain/src/internal/httpclient"
)

type recordingSink struct {
	mu        sync.Mutex
	envelopes []Envelope
	err       error
	closed    bool
}

func (s *recordingSink) Send(ctx context.Context, envelope Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, envelope)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestPublish_NoSinks(t *testing.T) {
	pub := NewPublisher("test-service")

	err := pub.Publish(context.Background(), EventContractCreated, "c-1", map[string]any{"contract_id": "c-1"})
	if err != nil {
		t.Errorf("Publish() without sinks error: %v", err)
	}
}

func TestPublish_Envelope(t *testing.T) {
	sink := &recordingSink{}
	pub := NewPublisher("agro-trade", sink)

	data := map[string]any{"contract_id": "c-1", "status": "COMPLETED"}
	if err := pub.Publish(context.Background(), EventContractStatusChanged, "c-1", data); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if len(sink.envelopes) != 1 {
		t.Fatalf("sink received %d envelopes, want 1", len(sink.envelopes))
	}
	env := sink.envelopes[0]
	if env.EventType != EventContractStatusChanged {
		t.Errorf("EventType = %v, want %v", env.EventType, EventContractStatusChanged)
	}
	if env.Source != "agro-trade" || env.Key != "c-1" || env.SchemaVersion != "1.0" {
		t.Errorf("envelope = %+v", env)
	}
	if !strings.HasPrefix(env.EventID, "evt_") {
		t.Errorf("EventID = %v, want evt_ prefix", env.EventID)
	}
	if !strings.HasPrefix(env.IdempotencyKey, EventContractStatusChanged+"_c-1_") {
		t.Errorf("IdempotencyKey = %v", env.IdempotencyKey)
	}
	if env.Data["status"] != "COMPLETED" {
		t.Errorf("Data = %v", env.Data)
	}
}

func TestPublish_FailingSinkDoesNotStopOthers(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	pub := NewPublisher("test", failing, ok)

	if err := pub.Publish(context.Background(), EventOfferMade, "o-1", nil); err != nil {
		t.Errorf("Publish() error = %v, sink failures are not reported to the caller", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	if len(failing.envelopes) != 1 || len(ok.envelopes) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(failing.envelopes), len(ok.envelopes))
	}
	if !failing.closed || !ok.closed {
		t.Error("Close() should close every sink")
	}
}

// blockingSink holds every Send until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Send(ctx context.Context, envelope Envelope) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func (s *blockingSink) Close() error {
	return nil
}

func TestPublish_DoesNotWaitForSinks(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	pub := NewPublisherWithQueue("test", 1, sink)

	if err := pub.Publish(context.Background(), EventOfferMade, "o-1", nil); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the first envelope")
	}

	started := time.Now()
	if err := pub.Publish(context.Background(), EventOfferMade, "o-2", nil); err != nil {
		t.Fatalf("Publish() with room in the queue error: %v", err)
	}
	err := pub.Publish(context.Background(), EventOfferMade, "o-3", nil)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Publish() on a full queue error = %v, want ErrQueueFull", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Errorf("Publish() blocked for %v behind a slow sink", elapsed)
	}

	close(sink.release)
	if err := pub.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestPublish_AfterClose(t *testing.T) {
	pub := NewPublisher("test", &recordingSink{})
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	err := pub.Publish(context.Background(), EventOfferMade, "o-1", nil)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
}

func TestWebhookSink(t *testing.T) {
	var received Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Event-Type") != EventTransportAssigned {
			t.Errorf("X-Event-Type = %q", r.Header.Get("X-Event-Type"))
		}
		if r.Header.Get("X-Event-ID") == "" {
			t.Error("missing X-Event-ID header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, httpclient.NewClient("test", 2*time.Second))
	pub := NewPublisher("agro-trade", sink)

	err := pub.Publish(context.Background(), EventTransportAssigned, "c-9", map[string]any{"transporter_id": "t-1"})
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if received.Key != "c-9" || received.Data["transporter_id"] != "t-1" {
		t.Errorf("webhook received %+v", received)
	}
}

func TestWebhookSinkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, httpclient.NewClient("test", 2*time.Second))
	err := sink.Send(context.Background(), Envelope{EventType: EventOfferMade})
	if err == nil {
		t.Error("Send() expected error for 500 response")
	}
}

func TestNewKafkaSinkValidation(t *testing.T) {
	if _, err := NewKafkaSink(nil, "trade-events"); err == nil {
		t.Error("NewKafkaSink() expected error without brokers")
	}
	if _, err := NewKafkaSink([]string{"localhost:9092"}, ""); err == nil {
		t.Error("NewKafkaSink() expected error without topic")
	}
	sink, err := NewKafkaSink([]string{"localhost:9092"}, "trade-events")
	if err != nil {
		t.Fatalf("NewKafkaSink() error: %v", err)
	}
	if sink.writer.BatchTimeout > 50*time.Millisecond {
		t.Errorf("BatchTimeout = %v, single-message writes would wait for a batch", sink.writer.BatchTimeout)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
