package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
)

// table keeps rows keyed by id and remembers insertion order.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

// newest returns matching rows, most recently inserted first.
func (t *table[T]) newest(match func(T) bool) []T {
	var out []T
	for i := len(t.order) - 1; i >= 0; i-- {
		v := t.rows[t.order[i]]
		if match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out
}

// oldest returns matching rows in insertion order.
func (t *table[T]) oldest(match func(T) bool) []T {
	var out []T
	for _, id := range t.order {
		v := t.rows[id]
		if match == nil || match(v) {
			out = append(out, v)
		}
	}
	return out
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         *table[model.User]
	listings      *table[model.Listing]
	offers        *table[model.Offer]
	contracts     *table[model.Contract]
	chats         *table[model.Chat]
	messages      *table[model.ChatMessage]
	notifications []model.Notification
	activity      []model.ActivityEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     newTable[model.User](),
		listings:  newTable[model.Listing](),
		offers:    newTable[model.Offer](),
		contracts: newTable[model.Contract](),
		chats:     newTable[model.Chat](),
		messages:  newTable[model.ChatMessage](),
	}
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users.get(id)
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := s.users.oldest(func(u model.User) bool {
		return (f.Role == "" || u.Role == f.Role) && (f.Email == "" || u.Email == f.Email)
	})
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) GetListing(ctx context.Context, id string) (model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings.get(id)
	if !ok {
		return model.Listing{}, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := s.listings.newest(func(l model.Listing) bool {
		return f.OwnerID == "" || l.OwnerID == f.OwnerID
	})
	for i := range listings {
		listings[i] = listings[i].Clone()
	}
	sortNewest(listings, func(l model.Listing) time.Time { return l.CreatedAt })
	return listings, nil
}

func (s *MemoryStore) GetOffer(ctx context.Context, id string) (model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers.get(id)
	if !ok {
		return model.Offer{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) ListOffers(ctx context.Context, f OfferFilter) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offers := s.offers.newest(f.matches)
	sortNewest(offers, func(o model.Offer) time.Time { return o.CreatedAt })
	return offers, nil
}

func (s *MemoryStore) GetContract(ctx context.Context, id string) (model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts.get(id)
	if !ok {
		return model.Contract{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListContracts(ctx context.Context, f ContractFilter) ([]model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts := s.contracts.newest(f.matches)
	for i := range contracts {
		contracts[i] = contracts[i].Clone()
	}
	sortNewest(contracts, func(c model.Contract) time.Time { return c.CreatedAt })
	return contracts, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		out = append(out, s.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.activity)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ActivityEntry, 0, n)
	for i := len(s.activity) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

func (s *MemoryStore) GetChat(ctx context.Context, id string) (model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats.get(id)
	if !ok {
		return model.Chat{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) FindChat(ctx context.Context, pairKey string) (model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := s.chats.oldest(func(c model.Chat) bool { return c.PairKey == pairKey })
	if len(found) == 0 {
		return model.Chat{}, ErrNotFound
	}
	return found[0].Clone(), nil
}

func (s *MemoryStore) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := s.chats.newest(func(c model.Chat) bool { return c.HasParticipant(userID) })
	for i := range chats {
		chats[i] = chats[i].Clone()
	}
	return chats, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages.oldest(func(m model.ChatMessage) bool { return m.ChatID == chatID })
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// Commit applies the whole batch under one write lock.
func (s *MemoryStore) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range b.Users {
		s.users.put(u.ID, u)
	}
	for _, l := range b.Listings {
		s.listings.put(l.ID, l.Clone())
	}
	for _, o := range b.Offers {
		s.offers.put(o.ID, o)
	}
	for _, c := range b.Contracts {
		s.contracts.put(c.ID, c.Clone())
	}
	for _, c := range b.Chats {
		s.chats.put(c.ID, c.Clone())
	}
	for _, m := range b.Messages {
		s.messages.put(m.ID, m)
	}
	s.notifications = append(s.notifications, slices.Clone(b.Notifications)...)
	s.activity = append(s.activity, slices.Clone(b.Activity)...)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortNewest[T any](rows []T, at func(T) time.Time) {
	sort.SliceStable(rows, func(i, j int) bool {
		return at(rows[i]).After(at(rows[j]))
	})
}
