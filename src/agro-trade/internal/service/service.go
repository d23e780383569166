package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTransporter is an ErrInvalidState: nobody can be assigned right now.
	ErrNoTransporter = fmt.Errorf("%w: no transporter available", ErrInvalidState)
)

// Outcome classifies the result of an operation for callers that need more than an error.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeInvalidState Outcome = "invalid_state"
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeStoreFailure Outcome = "store_failure"
)

func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeStoreFailure
	}
}

// Publisher receives lifecycle events after a transition is committed.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, data map[string]any) error
}

// Observer receives per-operation measurements.
type Observer interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	ObserveTransition(status string)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) ObserveTransition(string)                      {}

// Service runs the trade lifecycle. It holds no entity state of its own:
// every operation reads from the store, decides, and commits one batch.
type Service struct {
	store    store.Store
	events   Publisher
	observer Observer
	selector TransporterSelector
	locks    *keyedMutex
	now      func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithSelector replaces the transporter selection policy.
func WithSelector(sel TransporterSelector) Option {
	return func(s *Service) { s.selector = sel }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		events:   events.NewPublisher("agro-trade"),
		observer: nopObserver{},
		selector: FirstAvailable,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// track records the outcome of an operation; call it deferred with the named error result.
func (s *Service) track(ctx context.Context, operation string, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	outcome := OutcomeOf(err)
	s.observer.ObserveOperation(operation, string(outcome), time.Since(started))

	switch outcome {
	case OutcomeSuccess:
	case OutcomeStoreFailure:
		slog.ErrorContext(ctx, "operation_failed", "operation", operation, "error", err)
	default:
		slog.InfoContext(ctx, "operation_rejected", "operation", operation, "outcome", outcome, "error", err)
	}
}

func (s *Service) commit(ctx context.Context, b store.Batch) error {
	if err := s.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pendingEvent struct {
	eventType string
	key       string
	data      map[string]any
}

// outbox holds the events of one operation until it has released its entity locks.
type outbox struct {
	events []pendingEvent
}

func (o *outbox) add(eventType, key string, data map[string]any) {
	o.events = append(o.events, pendingEvent{eventType: eventType, key: key, data: data})
}

// flush must be deferred before the entity locks are taken so it runs after they are released.
func (s *Service) flush(ctx context.Context, o *outbox) {
	for _, e := range o.events {
		s.publish(ctx, e.eventType, e.key, e.data)
	}
}

// publish never fails the operation; the transition is already durable.
func (s *Service) publish(ctx context.Context, eventType, key string, data map[string]any) {
	if err := s.events.Publish(ctx, eventType, key, data); err != nil {
		slog.WarnContext(ctx, "event_publish_failed",
			"event_type", eventType,
			"key", key,
			"error", err,
		)
	}
}

// actor resolves the caller to a registered user.
func (s *Service) actor(ctx context.Context, caller model.Caller) (model.User, error) {
	if caller.UserID == "" {
		return model.User{}, fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	u, err := s.store.GetUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: unknown caller %s", ErrUnauthorized, caller.UserID)
		}
		return model.User{}, fmt.Errorf("load caller: %w", err)
	}
	return u, nil
}

func permit(role model.Role, op authz.Operation) error {
	if err := authz.Check(role, op); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

func lookupErr(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("load %s: %w", kind, err)
}

func (s *Service) loadListing(ctx context.Context, id string) (model.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return model.Listing{}, lookupErr("listing", id, err)
	}
	return l, nil
}

func (s *Service) loadOffer(ctx context.Context, id string) (model.Offer, error) {
	o, err := s.store.GetOffer(ctx, id)
	if err != nil {
		return model.Offer{}, lookupErr("offer", id, err)
	}
	return o, nil
}

func (s *Service) loadContract(ctx context.Context, id string) (model.Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return model.Contract{}, lookupErr("contract", id, err)
	}
	return c, nil
}

// contractValue is price × quantity computed in decimal.
func contractValue(pricePerTon, quantityTons float64) float64 {
	return decimal.NewFromFloat(pricePerTon).Mul(decimal.NewFromFloat(quantityTons)).InexactFloat64()
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func listingKey(id string) string  { return "listing:" + id }
func offerKey(id string) string    { return "offer:" + id }
func contractKey(id string) string { return "contract:" + id }
func userKey(id string) string     { return "user:" + id }
func chatKey(id string) string     { return "chat:" + id }
