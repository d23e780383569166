// Package query derives read-only projections from the entity store.
// Every call recomputes from current records.
package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/activity"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/service"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
)

type Views struct {
	store     store.Store
	feedLimit int
}

func NewViews(st store.Store, feedLimit int) *Views {
	if feedLimit <= 0 {
		feedLimit = activity.DefaultFeedLimit
	}
	return &Views{store: st, feedLimit: feedLimit}
}

// MarketplaceQuery filters the marketplace. Type is an exact, case-insensitive
// match; Text matches type or location as a substring.
type MarketplaceQuery struct {
	Type       string
	Text       string
	Descending bool
}

func (v *Views) Marketplace(ctx context.Context, q MarketplaceQuery) ([]model.Listing, error) {
	listings, err := v.store.ListListings(ctx, store.ListingFilter{})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	kind := strings.TrimSpace(q.Type)
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if kind != "" && !strings.EqualFold(l.Type, kind) {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(l.Type), text) &&
			!strings.Contains(strings.ToLower(l.Location), text) {
			continue
		}
		out = append(out, l)
	}

	slices.SortStableFunc(out, func(a, b model.Listing) int {
		if q.Descending {
			return cmp.Compare(b.PricePerTon, a.PricePerTon)
		}
		return cmp.Compare(a.PricePerTon, b.PricePerTon)
	})
	return out, nil
}

// MarketplaceTypes lists the distinct commodity types on offer, sorted.
func (v *Views) MarketplaceTypes(ctx context.Context) ([]string, error) {
	listings, err := v.store.ListListings(ctx, store.ListingFilter{})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	types := make([]string, 0, len(listings))
	for _, l := range listings {
		types = append(types, l.Type)
	}
	slices.Sort(types)
	return slices.Compact(types), nil
}

func (v *Views) MyListings(ctx context.Context, caller model.Caller) ([]model.Listing, error) {
	listings, err := v.store.ListListings(ctx, store.ListingFilter{OwnerID: caller.UserID})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return nonNil(listings), nil
}

// PendingOffers shows sellers the open offers on their listings and buyers
// the open offers they made. Admins see none.
func (v *Views) PendingOffers(ctx context.Context, caller model.Caller) ([]model.Offer, error) {
	switch caller.Role {
	case model.RoleFarmer, model.RoleTransporter:
		listings, err := v.store.ListListings(ctx, store.ListingFilter{OwnerID: caller.UserID})
		if err != nil {
			return nil, fmt.Errorf("list listings: %w", err)
		}
		var out []model.Offer
		for _, l := range listings {
			offers, err := v.store.ListOffers(ctx, store.OfferFilter{ListingID: l.ID, Status: model.OfferStatusPending})
			if err != nil {
				return nil, fmt.Errorf("list offers: %w", err)
			}
			out = append(out, offers...)
		}
		slices.SortStableFunc(out, func(a, b model.Offer) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		return nonNil(out), nil
	case model.RoleBuyer:
		offers, err := v.store.ListOffers(ctx, store.OfferFilter{BuyerID: caller.UserID, Status: model.OfferStatusPending})
		if err != nil {
			return nil, fmt.Errorf("list offers: %w", err)
		}
		return nonNil(offers), nil
	default:
		return []model.Offer{}, nil
	}
}

// MyContracts returns contracts where the caller is buyer or seller, newest first.
func (v *Views) MyContracts(ctx context.Context, caller model.Caller) ([]model.Contract, error) {
	bought, err := v.store.ListContracts(ctx, store.ContractFilter{BuyerID: caller.UserID})
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	sold, err := v.store.ListContracts(ctx, store.ContractFilter{FarmerID: caller.UserID})
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	seen := make(map[string]bool, len(bought)+len(sold))
	out := make([]model.Contract, 0, len(bought)+len(sold))
	for _, c := range append(bought, sold...) {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b model.Contract) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// TransportRequests is the transporter's queue of undecided COMPLETED contracts.
func (v *Views) TransportRequests(ctx context.Context, caller model.Caller) ([]model.Contract, error) {
	if caller.Role != model.RoleTransporter {
		return []model.Contract{}, nil
	}
	contracts, err := v.store.ListContracts(ctx, store.ContractFilter{
		TransporterID: caller.UserID,
		Status:        model.ContractStatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return slices.DeleteFunc(nonNil(contracts), func(c model.Contract) bool {
		return !c.AwaitingTransportDecision() || !c.AssignedTo(caller.UserID)
	}), nil
}

// Notifications returns the caller's notifications, most recent first.
func (v *Views) Notifications(ctx context.Context, caller model.Caller, limit int) ([]model.Notification, error) {
	notes, err := v.store.ListNotifications(ctx, caller.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return nonNil(notes), nil
}

// Activity returns the platform feed. A non-positive limit uses the configured default.
func (v *Views) Activity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = v.feedLimit
	}
	return activity.Feed(ctx, v.store, limit)
}

// Chats lists the caller's conversations, latest message first.
func (v *Views) Chats(ctx context.Context, caller model.Caller) ([]model.Chat, error) {
	chats, err := v.store.ListChats(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	slices.SortStableFunc(chats, func(a, b model.Chat) int {
		return lastActivity(b).Compare(lastActivity(a))
	})
	return nonNil(chats), nil
}

// Messages lists a conversation oldest first. Participants only.
func (v *Views) Messages(ctx context.Context, caller model.Caller, chatID string) ([]model.ChatMessage, error) {
	chat, err := v.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: chat %s", service.ErrNotFound, chatID)
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasParticipant(caller.UserID) {
		return nil, fmt.Errorf("%w: caller is not in chat %s", service.ErrUnauthorized, chatID)
	}
	msgs, err := v.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return nonNil(msgs), nil
}

// UnreadChats counts conversations waiting on the caller and their unread messages.
func (v *Views) UnreadChats(ctx context.Context, caller model.Caller) (model.UnreadSummary, error) {
	chats, err := v.store.ListChats(ctx, caller.UserID)
	if err != nil {
		return model.UnreadSummary{}, fmt.Errorf("list chats: %w", err)
	}
	var summary model.UnreadSummary
	for _, c := range chats {
		if c.UnreadBy == caller.UserID && c.UnreadCount > 0 {
			summary.Chats++
			summary.Unread += c.UnreadCount
		}
	}
	return summary, nil
}

func lastActivity(c model.Chat) time.Time {
	if c.LastMessageTime != nil {
		return *c.LastMessageTime
	}
	return c.CreatedAt
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
