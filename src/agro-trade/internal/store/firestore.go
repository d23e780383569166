package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps one collection per entity kind, named with an optional prefix.
// Filtered lists rely on composite indexes over (field, created_at).
type FirestoreStore struct {
	client *firestore.Client
	prefix string
}

func NewFirestoreStore(projectID, prefix string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *FirestoreStore) col(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

func (s *FirestoreStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return getDoc[model.User](ctx, s.col(collUsers).Doc(id))
}

func (s *FirestoreStore) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	q := s.col(collUsers).Query
	if f.Role != "" {
		q = q.Where("role", "==", string(f.Role))
	}
	if f.Email != "" {
		q = q.Where("email", "==", f.Email)
	}
	return queryDocs[model.User](ctx, q.OrderBy("created_at", firestore.Asc))
}

func (s *FirestoreStore) GetListing(ctx context.Context, id string) (model.Listing, error) {
	return getDoc[model.Listing](ctx, s.col(collListings).Doc(id))
}

func (s *FirestoreStore) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	q := s.col(collListings).Query
	if f.OwnerID != "" {
		q = q.Where("owner_id", "==", f.OwnerID)
	}
	return queryDocs[model.Listing](ctx, q.OrderBy("created_at", firestore.Desc))
}

func (s *FirestoreStore) GetOffer(ctx context.Context, id string) (model.Offer, error) {
	return getDoc[model.Offer](ctx, s.col(collOffers).Doc(id))
}

func (s *FirestoreStore) ListOffers(ctx context.Context, f OfferFilter) ([]model.Offer, error) {
	q := s.col(collOffers).Query
	if f.ListingID != "" {
		q = q.Where("listing_id", "==", f.ListingID)
	}
	if f.BuyerID != "" {
		q = q.Where("buyer_id", "==", f.BuyerID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	return queryDocs[model.Offer](ctx, q.OrderBy("created_at", firestore.Desc))
}

func (s *FirestoreStore) GetContract(ctx context.Context, id string) (model.Contract, error) {
	return getDoc[model.Contract](ctx, s.col(collContracts).Doc(id))
}

func (s *FirestoreStore) ListContracts(ctx context.Context, f ContractFilter) ([]model.Contract, error) {
	q := s.col(collContracts).Query
	if f.BuyerID != "" {
		q = q.Where("buyer_id", "==", f.BuyerID)
	}
	if f.FarmerID != "" {
		q = q.Where("farmer_id", "==", f.FarmerID)
	}
	if f.TransporterID != "" {
		q = q.Where("transporter_id", "==", f.TransporterID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	return queryDocs[model.Contract](ctx, q.OrderBy("created_at", firestore.Desc))
}

func (s *FirestoreStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	q := s.col(collNotifications).Where("user_id", "==", userID).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return queryDocs[model.Notification](ctx, q)
}

func (s *FirestoreStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	q := s.col(collActivity).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return queryDocs[model.ActivityEntry](ctx, q)
}

func (s *FirestoreStore) GetChat(ctx context.Context, id string) (model.Chat, error) {
	return getDoc[model.Chat](ctx, s.col(collChats).Doc(id))
}

func (s *FirestoreStore) FindChat(ctx context.Context, pairKey string) (model.Chat, error) {
	chats, err := queryDocs[model.Chat](ctx, s.col(collChats).Where("pair_key", "==", pairKey).Limit(1))
	if err != nil {
		return model.Chat{}, err
	}
	if len(chats) == 0 {
		return model.Chat{}, ErrNotFound
	}
	return chats[0], nil
}

func (s *FirestoreStore) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	q := s.col(collChats).Where("participants", "array-contains", userID).OrderBy("created_at", firestore.Desc)
	return queryDocs[model.Chat](ctx, q)
}

func (s *FirestoreStore) ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	q := s.col(collMessages).Where("chat_id", "==", chatID).OrderBy("created_at", firestore.Asc)
	return queryDocs[model.ChatMessage](ctx, q)
}

// Commit writes the batch in a single Firestore transaction.
func (s *FirestoreStore) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, u := range b.Users {
			if err := tx.Set(s.col(collUsers).Doc(u.ID), u); err != nil {
				return err
			}
		}
		for _, l := range b.Listings {
			if err := tx.Set(s.col(collListings).Doc(l.ID), l); err != nil {
				return err
			}
		}
		for _, o := range b.Offers {
			if err := tx.Set(s.col(collOffers).Doc(o.ID), o); err != nil {
				return err
			}
		}
		for _, c := range b.Contracts {
			if err := tx.Set(s.col(collContracts).Doc(c.ID), c); err != nil {
				return err
			}
		}
		for _, c := range b.Chats {
			if err := tx.Set(s.col(collChats).Doc(c.ID), c); err != nil {
				return err
			}
		}
		for _, m := range b.Messages {
			if err := tx.Set(s.col(collMessages).Doc(m.ID), m); err != nil {
				return err
			}
		}
		for _, n := range b.Notifications {
			if err := tx.Set(s.col(collNotifications).Doc(n.ID), n); err != nil {
				return err
			}
		}
		for _, a := range b.Activity {
			if err := tx.Set(s.col(collActivity).Doc(a.ID), a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func getDoc[T any](ctx context.Context, ref *firestore.DocumentRef) (T, error) {
	var out T
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("get %s: %w", ref.Path, err)
	}
	if err := doc.DataTo(&out); err != nil {
		return out, fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	return out, nil
}

func queryDocs[T any](ctx context.Context, q firestore.Query) ([]T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate documents: %w", err)
		}

		var row T
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}
