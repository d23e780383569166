package store

import (
	"context"
	"errors"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store is the entity store behind the trade engine. Reads are per kind;
// every write goes through Commit so a lifecycle transition lands as one unit.
type Store interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]model.User, error)

	GetListing(ctx context.Context, id string) (model.Listing, error)
	ListListings(ctx context.Context, f ListingFilter) ([]model.Listing, error)

	GetOffer(ctx context.Context, id string) (model.Offer, error)
	ListOffers(ctx context.Context, f OfferFilter) ([]model.Offer, error)

	GetContract(ctx context.Context, id string) (model.Contract, error)
	ListContracts(ctx context.Context, f ContractFilter) ([]model.Contract, error)

	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)

	GetChat(ctx context.Context, id string) (model.Chat, error)
	FindChat(ctx context.Context, pairKey string) (model.Chat, error)
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error)

	Commit(ctx context.Context, b Batch) error
	Close() error
}

// UserFilter lists users in registration order.
type UserFilter struct {
	Role  model.Role
	Email string
}

// ListingFilter lists listings newest first.
type ListingFilter struct {
	OwnerID string
}

// OfferFilter lists offers newest first. Empty fields match everything.
type OfferFilter struct {
	ListingID string
	BuyerID   string
	Status    model.OfferStatus
}

// ContractFilter lists contracts newest first. Empty fields match everything.
type ContractFilter struct {
	BuyerID       string
	FarmerID      string
	TransporterID string
	Status        model.ContractStatus
}

// Batch is the set of upserts produced by one transition.
type Batch struct {
	Users         []model.User
	Listings      []model.Listing
	Offers        []model.Offer
	Contracts     []model.Contract
	Notifications []model.Notification
	Activity      []model.ActivityEntry
	Chats         []model.Chat
	Messages      []model.ChatMessage
}

func (b *Batch) Empty() bool {
	return len(b.Users) == 0 && len(b.Listings) == 0 && len(b.Offers) == 0 &&
		len(b.Contracts) == 0 && len(b.Notifications) == 0 && len(b.Activity) == 0 &&
		len(b.Chats) == 0 && len(b.Messages) == 0
}

func (f OfferFilter) matches(o model.Offer) bool {
	return (f.ListingID == "" || o.ListingID == f.ListingID) &&
		(f.BuyerID == "" || o.BuyerID == f.BuyerID) &&
		(f.Status == "" || o.Status == f.Status)
}

func (f ContractFilter) matches(c model.Contract) bool {
	if f.TransporterID != "" && !c.AssignedTo(f.TransporterID) {
		return false
	}
	return (f.BuyerID == "" || c.BuyerID == f.BuyerID) &&
		(f.FarmerID == "" || c.FarmerID == f.FarmerID) &&
		(f.Status == "" || c.Status == f.Status)
}
