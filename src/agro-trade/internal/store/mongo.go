package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collUsers         = "users"
	collListings      = "listings"
	collOffers        = "offers"
	collContracts     = "contracts"
	collNotifications = "notifications"
	collActivity      = "activity"
	collChats         = "chats"
	collMessages      = "chat_messages"
)

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
var oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// MongoStore keeps one collection per entity kind. With transactions enabled
// a Batch is written inside a session transaction, which needs a replica set.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

func NewMongoStore(client *mongo.Client, dbName string, transactions bool) *MongoStore {
	return &MongoStore{
		client:       client,
		db:           client.Database(dbName),
		transactions: transactions,
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "email", Value: 1}}},
		},
		collListings: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collOffers: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collContracts: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
			{Keys: bson.D{{Key: "farmer_id", Value: 1}}},
			{Keys: bson.D{{Key: "transporter_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		collNotifications: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collActivity: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		collChats: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "pair_key", Value: 1}}},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		collMessages: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for name, indexes := range specs {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (model.User, error) {
	return findOne[model.User](ctx, s.db.Collection(collUsers), bson.M{"id": id})
}

func (s *MongoStore) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Email != "" {
		filter["email"] = f.Email
	}
	return findAll[model.User](ctx, s.db.Collection(collUsers), filter, options.Find().SetSort(oldestFirst))
}

func (s *MongoStore) GetListing(ctx context.Context, id string) (model.Listing, error) {
	return findOne[model.Listing](ctx, s.db.Collection(collListings), bson.M{"id": id})
}

func (s *MongoStore) ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error) {
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	return findAll[model.Listing](ctx, s.db.Collection(collListings), filter, options.Find().SetSort(newestFirst))
}

func (s *MongoStore) GetOffer(ctx context.Context, id string) (model.Offer, error) {
	return findOne[model.Offer](ctx, s.db.Collection(collOffers), bson.M{"id": id})
}

func (s *MongoStore) ListOffers(ctx context.Context, f OfferFilter) ([]model.Offer, error) {
	filter := bson.M{}
	if f.ListingID != "" {
		filter["listing_id"] = f.ListingID
	}
	if f.BuyerID != "" {
		filter["buyer_id"] = f.BuyerID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return findAll[model.Offer](ctx, s.db.Collection(collOffers), filter, options.Find().SetSort(newestFirst))
}

func (s *MongoStore) GetContract(ctx context.Context, id string) (model.Contract, error) {
	return findOne[model.Contract](ctx, s.db.Collection(collContracts), bson.M{"id": id})
}

func (s *MongoStore) ListContracts(ctx context.Context, f ContractFilter) ([]model.Contract, error) {
	filter := bson.M{}
	if f.BuyerID != "" {
		filter["buyer_id"] = f.BuyerID
	}
	if f.FarmerID != "" {
		filter["farmer_id"] = f.FarmerID
	}
	if f.TransporterID != "" {
		filter["transporter_id"] = f.TransporterID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return findAll[model.Contract](ctx, s.db.Collection(collContracts), filter, options.Find().SetSort(newestFirst))
}

func (s *MongoStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[model.Notification](ctx, s.db.Collection(collNotifications), bson.M{"user_id": userID}, opts)
}

func (s *MongoStore) ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[model.ActivityEntry](ctx, s.db.Collection(collActivity), bson.M{}, opts)
}

func (s *MongoStore) GetChat(ctx context.Context, id string) (model.Chat, error) {
	return findOne[model.Chat](ctx, s.db.Collection(collChats), bson.M{"id": id})
}

func (s *MongoStore) FindChat(ctx context.Context, pairKey string) (model.Chat, error) {
	return findOne[model.Chat](ctx, s.db.Collection(collChats), bson.M{"pair_key": pairKey})
}

func (s *MongoStore) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	return findAll[model.Chat](ctx, s.db.Collection(collChats), bson.M{"participants": userID}, options.Find().SetSort(newestFirst))
}

func (s *MongoStore) ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	return findAll[model.ChatMessage](ctx, s.db.Collection(collMessages), bson.M{"chat_id": chatID}, options.Find().SetSort(oldestFirst))
}

func (s *MongoStore) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if !s.transactions {
		return s.apply(ctx, b)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, s.apply(sc, b)
	})
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *MongoStore) apply(ctx context.Context, b Batch) error {
	if err := upsertAll(ctx, s.db.Collection(collUsers), b.Users, func(u model.User) string { return u.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collListings), b.Listings, func(l model.Listing) string { return l.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collOffers), b.Offers, func(o model.Offer) string { return o.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collContracts), b.Contracts, func(c model.Contract) string { return c.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collChats), b.Chats, func(c model.Chat) string { return c.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collMessages), b.Messages, func(m model.ChatMessage) string { return m.ID }); err != nil {
		return err
	}
	if err := upsertAll(ctx, s.db.Collection(collNotifications), b.Notifications, func(n model.Notification) string { return n.ID }); err != nil {
		return err
	}
	return upsertAll(ctx, s.db.Collection(collActivity), b.Activity, func(a model.ActivityEntry) string { return a.ID })
}

func (s *MongoStore) Close() error {
	// MongoDB client is shared, no need to close here
	return nil
}

func upsertAll[T any](ctx context.Context, coll *mongo.Collection, rows []T, id func(T) string) error {
	if len(rows) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": id(row)}).
			SetReplacement(row).
			SetUpsert(true))
	}
	if _, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("write %s: %w", coll.Name(), err)
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return out, ErrNotFound
		}
		return out, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []T
	for cur.Next(ctx) {
		var row T
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
		}
		out = append(out, row)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
