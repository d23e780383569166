package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/activity"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/notify"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
	"github.com/google/uuid"
)

const directPurchaseMessage = "Direct purchase at listing price"

// MakeOffer records a bid against a listing. The listing itself is never modified,
// and the owner is not prevented from bidding on their own listing.
func (s *Service) MakeOffer(ctx context.Context, caller model.Caller, listingID string, req model.MakeOfferRequest) (offer model.Offer, err error) {
	defer s.track(ctx, "make_offer", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpMakeOffer); err != nil {
		return model.Offer{}, err
	}
	if !validAmount(req.PricePerTon) {
		return model.Offer{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	buyer, err := s.actor(ctx, caller)
	if err != nil {
		return model.Offer{}, err
	}

	unlock := s.locks.Lock(listingKey(listingID))
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return model.Offer{}, err
	}

	now := s.clock()
	offer = model.Offer{
		ID:          uuid.NewString(),
		ListingID:   listing.ID,
		BuyerID:     buyer.ID,
		PricePerTon: req.PricePerTon,
		Message:     req.Message,
		Status:      model.OfferStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	price := formatAmount(offer.PricePerTon)

	var b store.Batch
	b.Offers = append(b.Offers, offer)
	activity.Record(&b, now, fmt.Sprintf("%s offered %s/T on %s", buyer.Name, price, listing.Type))
	notify.Broadcast(&b, now, fmt.Sprintf("%s offered %s/T for your %s listing", buyer.Name, price, listing.Type), listing.OwnerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Offer{}, err
	}

	slog.InfoContext(ctx, "offer_made",
		"offer_id", offer.ID,
		"listing_id", listing.ID,
		"buyer_id", buyer.ID,
		"price_per_ton", offer.PricePerTon,
	)
	out.add(events.EventOfferMade, offer.ID, map[string]any{
		"offer_id":      offer.ID,
		"listing_id":    listing.ID,
		"buyer_id":      buyer.ID,
		"price_per_ton": offer.PricePerTon,
	})
	return offer, nil
}

// BuyDirectly forms a contract at the listing's asking price. The synthesized
// offer is stored as ACCEPTED next to the contract.
func (s *Service) BuyDirectly(ctx context.Context, caller model.Caller, listingID string) (contract model.Contract, err error) {
	defer s.track(ctx, "buy_directly", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpBuyDirectly); err != nil {
		return model.Contract{}, err
	}
	buyer, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(listingKey(listingID))
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return model.Contract{}, err
	}
	if listing.OwnerID == buyer.ID {
		return model.Contract{}, fmt.Errorf("%w: cannot purchase own listing %s", ErrUnauthorized, listing.ID)
	}

	now := s.clock()
	offer := model.Offer{
		ID:          uuid.NewString(),
		ListingID:   listing.ID,
		BuyerID:     buyer.ID,
		PricePerTon: listing.PricePerTon,
		Message:     directPurchaseMessage,
		Status:      model.OfferStatusAccepted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	contract = newContract(listing, offer, now)
	offer.ContractID = contract.ID

	var b store.Batch
	b.Offers = append(b.Offers, offer)
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("%s purchased %s directly at %s/T", buyer.Name, listing.Type, formatAmount(listing.PricePerTon)))
	notify.Broadcast(&b, now, fmt.Sprintf("%s purchased your %s listing directly. Escrow locked.", buyer.Name, listing.Type), listing.OwnerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	s.contractCreated(ctx, &out, contract, "direct_purchase")
	return contract, nil
}

// AcceptOffer turns an open offer into a contract. Only the listing owner may
// accept; other open offers on the listing stay open.
func (s *Service) AcceptOffer(ctx context.Context, caller model.Caller, listingID, offerID string) (contract model.Contract, err error) {
	defer s.track(ctx, "accept_offer", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpAcceptOffer); err != nil {
		return model.Contract{}, err
	}
	seller, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(listingKey(listingID), offerKey(offerID))
	defer unlock()

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return model.Contract{}, err
	}
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return model.Contract{}, err
	}
	if offer.ListingID != listing.ID {
		return model.Contract{}, fmt.Errorf("%w: offer %s on listing %s", ErrNotFound, offerID, listingID)
	}
	if listing.OwnerID != seller.ID {
		return model.Contract{}, fmt.Errorf("%w: listing %s is not owned by caller", ErrUnauthorized, listing.ID)
	}
	if !offer.Open() {
		return model.Contract{}, fmt.Errorf("%w: offer %s is %s", ErrInvalidState, offer.ID, offer.Status)
	}

	now := s.clock()
	contract = newContract(listing, offer, now)
	offer.Status = model.OfferStatusAccepted
	offer.ContractID = contract.ID
	offer.UpdatedAt = now

	var b store.Batch
	b.Offers = append(b.Offers, offer)
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("Offer accepted for %s. Escrow locked.", listing.Type))
	notify.Broadcast(&b, now, fmt.Sprintf("%s accepted your offer on %s. Escrow secured.", seller.Name, listing.Type), offer.BuyerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	s.contractCreated(ctx, &out, contract, "offer_accepted")
	return contract, nil
}

// RejectOffer closes one open offer on the caller's listing.
func (s *Service) RejectOffer(ctx context.Context, caller model.Caller, offerID string) (offer model.Offer, err error) {
	defer s.track(ctx, "reject_offer", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpRejectOffer); err != nil {
		return model.Offer{}, err
	}
	seller, err := s.actor(ctx, caller)
	if err != nil {
		return model.Offer{}, err
	}

	unlock := s.locks.Lock(offerKey(offerID))
	defer unlock()

	offer, err = s.loadOffer(ctx, offerID)
	if err != nil {
		return model.Offer{}, err
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return model.Offer{}, err
	}
	if listing.OwnerID != seller.ID {
		return model.Offer{}, fmt.Errorf("%w: listing %s is not owned by caller", ErrUnauthorized, listing.ID)
	}
	if !offer.Open() {
		return model.Offer{}, fmt.Errorf("%w: offer %s is %s", ErrInvalidState, offer.ID, offer.Status)
	}

	now := s.clock()
	offer.Status = model.OfferStatusRejected
	offer.UpdatedAt = now

	var b store.Batch
	b.Offers = append(b.Offers, offer)
	activity.Record(&b, now, fmt.Sprintf("Offer rejected for %s", listing.Type))
	notify.Broadcast(&b, now, fmt.Sprintf("%s rejected your offer on %s", seller.Name, listing.Type), offer.BuyerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Offer{}, err
	}

	slog.InfoContext(ctx, "offer_rejected", "offer_id", offer.ID, "listing_id", listing.ID)
	out.add(events.EventOfferRejected, offer.ID, map[string]any{
		"offer_id":   offer.ID,
		"listing_id": listing.ID,
		"buyer_id":   offer.BuyerID,
	})
	return offer, nil
}

// WithdrawOffer lets the bidder take back an open offer.
func (s *Service) WithdrawOffer(ctx context.Context, caller model.Caller, offerID string) (offer model.Offer, err error) {
	defer s.track(ctx, "withdraw_offer", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpWithdrawOffer); err != nil {
		return model.Offer{}, err
	}
	buyer, err := s.actor(ctx, caller)
	if err != nil {
		return model.Offer{}, err
	}

	unlock := s.locks.Lock(offerKey(offerID))
	defer unlock()

	offer, err = s.loadOffer(ctx, offerID)
	if err != nil {
		return model.Offer{}, err
	}
	if offer.BuyerID != buyer.ID {
		return model.Offer{}, fmt.Errorf("%w: offer %s was not made by caller", ErrUnauthorized, offer.ID)
	}
	if !offer.Open() {
		return model.Offer{}, fmt.Errorf("%w: offer %s is %s", ErrInvalidState, offer.ID, offer.Status)
	}
	listing, err := s.loadListing(ctx, offer.ListingID)
	if err != nil {
		return model.Offer{}, err
	}

	now := s.clock()
	offer.Status = model.OfferStatusWithdrawn
	offer.UpdatedAt = now

	var b store.Batch
	b.Offers = append(b.Offers, offer)
	activity.Record(&b, now, fmt.Sprintf("%s withdrew an offer on %s", buyer.Name, listing.Type))
	notify.Broadcast(&b, now, fmt.Sprintf("%s withdrew the offer on your %s listing", buyer.Name, listing.Type), listing.OwnerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Offer{}, err
	}

	slog.InfoContext(ctx, "offer_withdrawn", "offer_id", offer.ID, "listing_id", listing.ID)
	out.add(events.EventOfferWithdrawn, offer.ID, map[string]any{
		"offer_id":   offer.ID,
		"listing_id": listing.ID,
		"buyer_id":   offer.BuyerID,
	})
	return offer, nil
}

// newContract prices the contract from the originating offer and fixes it for its lifetime.
func newContract(listing model.Listing, offer model.Offer, now time.Time) model.Contract {
	return model.Contract{
		ID:           uuid.NewString(),
		ListingID:    listing.ID,
		OfferID:      offer.ID,
		FarmerID:     listing.OwnerID,
		BuyerID:      offer.BuyerID,
		Commodity:    listing.Type,
		PricePerTon:  offer.PricePerTon,
		QuantityTons: listing.QuantityTons,
		TotalValue:   contractValue(offer.PricePerTon, listing.QuantityTons),
		Status:       model.ContractStatusEscrowLocked,
		EscrowLocked: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Service) contractCreated(ctx context.Context, out *outbox, c model.Contract, origin string) {
	s.observer.ObserveTransition(string(c.Status))
	slog.InfoContext(ctx, "contract_created",
		"contract_id", c.ID,
		"listing_id", c.ListingID,
		"offer_id", c.OfferID,
		"buyer_id", c.BuyerID,
		"farmer_id", c.FarmerID,
		"total_value", c.TotalValue,
		"origin", origin,
	)
	out.add(events.EventContractCreated, c.ID, map[string]any{
		"contract_id": c.ID,
		"listing_id":  c.ListingID,
		"offer_id":    c.OfferID,
		"buyer_id":    c.BuyerID,
		"farmer_id":   c.FarmerID,
		"total_value": c.TotalValue,
		"status":      string(c.Status),
		"origin":      origin,
	})
}
