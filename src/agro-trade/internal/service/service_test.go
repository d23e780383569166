package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/testutil"
)

type publishedEvent struct {
	Type string
	Key  string
	Data map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Key: key, Data: data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// gatedPublisher holds the first Publish until release is closed.
type gatedPublisher struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *gatedPublisher) Publish(context.Context, string, string, map[string]any) error {
	first := false
	p.once.Do(func() {
		first = true
		close(p.entered)
	})
	if first {
		<-p.release
	}
	return nil
}

type recordingObserver struct {
	mu          sync.Mutex
	outcomes    map[string][]string
	transitions []string
}

func (o *recordingObserver) ObserveOperation(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]string)
	}
	o.outcomes[op] = append(o.outcomes[op], outcome)
}

func (o *recordingObserver) ObserveTransition(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, status)
}

// failingStore fails every commit.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Commit(context.Context, store.Batch) error {
	return errors.New("disk on fire")
}

// steppingClock advances one second per reading so ordering is deterministic.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type env struct {
	t        *testing.T
	ctx      context.Context
	st       *store.MemoryStore
	svc      *Service
	events   *recordingPublisher
	observer *recordingObserver

	farmer model.User
	buyer  model.User
	admin  model.User
	other  model.User

	listing model.Listing
}

func newEnv(t *testing.T, extra ...model.User) *env {
	t.Helper()
	e := &env{
		t:        t,
		ctx:      context.Background(),
		st:       store.NewMemoryStore(),
		events:   &recordingPublisher{},
		observer: &recordingObserver{},
	}
	e.svc = New(e.st, WithPublisher(e.events), WithObserver(e.observer), WithClock(steppingClock()))

	e.farmer = testutil.NewUserFixture("farmer-1").WithName("Ravi").Build()
	e.buyer = testutil.NewUserFixture("buyer-1").WithRole(model.RoleBuyer).WithName("Meera").CreatedAfter(time.Minute).Build()
	e.admin = testutil.NewUserFixture("admin-1").WithRole(model.RoleAdmin).WithName("Admin").CreatedAfter(2 * time.Minute).Build()
	e.other = testutil.NewUserFixture("farmer-2").WithName("Kiran").CreatedAfter(3 * time.Minute).Build()
	e.listing = testutil.NewListingFixture("listing-1", e.farmer.ID).Build()

	users := append([]model.User{e.farmer, e.buyer, e.admin, e.other}, extra...)
	err := e.st.Commit(e.ctx, store.Batch{Users: users, Listings: []model.Listing{e.listing}})
	testutil.AssertNoError(t, err, "seed store")
	return e
}

func caller(u model.User) model.Caller {
	return model.Caller{UserID: u.ID, Role: u.Role}
}

func transporter(id string, after time.Duration) model.User {
	return testutil.NewUserFixture(id).WithRole(model.RoleTransporter).WithName("Trucker " + id).CreatedAfter(after).Build()
}

func (e *env) notifications(userID string) []model.Notification {
	e.t.Helper()
	n, err := e.st.ListNotifications(e.ctx, userID, 0)
	testutil.AssertNoError(e.t, err, "list notifications")
	return n
}

func (e *env) contract(id string) model.Contract {
	e.t.Helper()
	c, err := e.st.GetContract(e.ctx, id)
	testutil.AssertNoError(e.t, err, "get contract")
	return c
}

func (e *env) allContracts() []model.Contract {
	e.t.Helper()
	c, err := e.st.ListContracts(e.ctx, store.ContractFilter{})
	testutil.AssertNoError(e.t, err, "list contracts")
	return c
}

func (e *env) activityCount() int {
	e.t.Helper()
	a, err := e.st.ListActivity(e.ctx, 0)
	testutil.AssertNoError(e.t, err, "list activity")
	return len(a)
}

// escrowContract creates a contract through a direct purchase.
func (e *env) escrowContract() model.Contract {
	e.t.Helper()
	c, err := e.svc.BuyDirectly(e.ctx, caller(e.buyer), e.listing.ID)
	testutil.AssertNoError(e.t, err, "buy directly")
	return c
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"not found", ErrNotFound, OutcomeNotFound},
		{"wrapped unauthorized", errors.Join(errors.New("ctx"), ErrUnauthorized), OutcomeUnauthorized},
		{"no transporter", ErrNoTransporter, OutcomeInvalidState},
		{"invalid input", ErrInvalidInput, OutcomeInvalidInput},
		{"other", errors.New("boom"), OutcomeStoreFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeOf(tt.err); got != tt.want {
				t.Errorf("OutcomeOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestContractValue(t *testing.T) {
	tests := []struct {
		price, qty, want float64
	}{
		{500, 10, 5000},
		{450, 10, 4500},
		{0.1, 3, 0.3},
		{1234.56, 2.5, 3086.4},
		{0, 7, 0},
	}
	for _, tt := range tests {
		if got := contractValue(tt.price, tt.qty); got != tt.want {
			t.Errorf("contractValue(%v, %v) = %v, want %v", tt.price, tt.qty, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	testutil.AssertEqual(t, "450", formatAmount(450))
	testutil.AssertEqual(t, "12.5", formatAmount(12.5))
}

func TestUnknownCallerIsUnauthorized(t *testing.T) {
	e := newEnv(t)
	ghost := model.Caller{UserID: "ghost", Role: model.RoleBuyer}

	_, err := e.svc.MakeOffer(e.ctx, ghost, e.listing.ID, model.MakeOfferRequest{PricePerTon: 400})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = e.svc.BuyDirectly(e.ctx, model.Caller{}, e.listing.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous caller, got %v", err)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	mem := store.NewMemoryStore()
	buyer := testutil.NewUserFixture("b").WithRole(model.RoleBuyer).Build()
	farmer := testutil.NewUserFixture("f").Build()
	listing := testutil.NewListingFixture("l", farmer.ID).Build()
	testutil.AssertNoError(t, mem.Commit(context.Background(), store.Batch{
		Users:    []model.User{buyer, farmer},
		Listings: []model.Listing{listing},
	}))

	pub := &recordingPublisher{}
	obs := &recordingObserver{}
	svc := New(failingStore{mem}, WithPublisher(pub), WithObserver(obs))

	_, err := svc.BuyDirectly(context.Background(), caller(buyer), listing.ID)
	if err == nil {
		t.Fatal("expected commit failure")
	}
	testutil.AssertEqual(t, OutcomeStoreFailure, OutcomeOf(err))
	testutil.AssertEqual(t, 0, len(pub.types()), "no event after failed commit")
	testutil.AssertEqual(t, []string{"store_failure"}, obs.outcomes["buy_directly"])

	contracts, _ := mem.ListContracts(context.Background(), store.ContractFilter{})
	testutil.AssertEqual(t, 0, len(contracts))
}

func TestObserverSeesOutcomes(t *testing.T) {
	e := newEnv(t)
	e.escrowContract()
	_, _ = e.svc.BuyDirectly(e.ctx, caller(e.farmer), e.listing.ID)

	testutil.AssertEqual(t, []string{"success", "unauthorized"}, e.observer.outcomes["buy_directly"])
	testutil.AssertEqual(t, []string{string(model.ContractStatusEscrowLocked)}, e.observer.transitions)
}
