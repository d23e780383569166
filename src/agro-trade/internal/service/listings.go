package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/activity"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/notify"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
	"github.com/google/uuid"
)

// CreateListing publishes a listing owned by the caller. Any role may sell.
func (s *Service) CreateListing(ctx context.Context, caller model.Caller, req model.CreateListingRequest) (listing model.Listing, err error) {
	defer s.track(ctx, "create_listing", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpCreateListing); err != nil {
		return model.Listing{}, err
	}
	if err := validateListing(req); err != nil {
		return model.Listing{}, err
	}
	owner, err := s.actor(ctx, caller)
	if err != nil {
		return model.Listing{}, err
	}

	users, err := s.store.ListUsers(ctx, store.UserFilter{})
	if err != nil {
		return model.Listing{}, fmt.Errorf("list users: %w", err)
	}

	now := s.clock()
	listing = model.Listing{
		ID:               uuid.NewString(),
		OwnerID:          owner.ID,
		OwnerRole:        owner.Role,
		Type:             strings.TrimSpace(req.Type),
		QuantityTons:     req.QuantityTons,
		QualityGrade:     strings.TrimSpace(req.QualityGrade),
		PricePerTon:      req.PricePerTon,
		Location:         strings.TrimSpace(req.Location),
		Description:      req.Description,
		ImageRef:         req.ImageRef,
		MoisturePercent:  req.MoisturePercent,
		ProteinPercent:   req.ProteinPercent,
		StorageCondition: req.StorageCondition,
		Packaging:        req.Packaging,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	recipients := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != owner.ID {
			recipients = append(recipients, u.ID)
		}
	}
	qty := formatAmount(listing.QuantityTons)

	var b store.Batch
	b.Listings = append(b.Listings, listing)
	activity.Record(&b, now, fmt.Sprintf("%s listed %s (%sT) from %s", owner.Name, listing.Type, qty, listing.Location))
	notify.Broadcast(&b, now, fmt.Sprintf("New %s listing (%sT) from %s", listing.Type, qty, owner.Name), recipients...)
	if err := s.commit(ctx, b); err != nil {
		return model.Listing{}, err
	}

	slog.InfoContext(ctx, "listing_created",
		"listing_id", listing.ID,
		"owner_id", listing.OwnerID,
		"type", listing.Type,
		"notified", len(recipients),
	)
	out.add(events.EventListingCreated, listing.ID, map[string]any{
		"listing_id":    listing.ID,
		"owner_id":      listing.OwnerID,
		"type":          listing.Type,
		"quantity_tons": listing.QuantityTons,
		"price_per_ton": listing.PricePerTon,
	})
	return listing, nil
}

// UpdateListing changes price, quantity or descriptive fields. Owner only.
// Contracts already formed keep the values they were created with.
func (s *Service) UpdateListing(ctx context.Context, caller model.Caller, listingID string, patch model.ListingPatch) (listing model.Listing, err error) {
	defer s.track(ctx, "update_listing", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpUpdateListing); err != nil {
		return model.Listing{}, err
	}
	if patch.PricePerTon != nil && !validAmount(*patch.PricePerTon) {
		return model.Listing{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	if patch.QuantityTons != nil && !validAmount(*patch.QuantityTons) {
		return model.Listing{}, fmt.Errorf("%w: quantity must be non-negative", ErrInvalidInput)
	}

	unlock := s.locks.Lock(listingKey(listingID))
	defer unlock()

	listing, err = s.loadListing(ctx, listingID)
	if err != nil {
		return model.Listing{}, err
	}
	if listing.OwnerID != caller.UserID {
		return model.Listing{}, fmt.Errorf("%w: listing %s is not owned by caller", ErrUnauthorized, listingID)
	}

	applyPatch(&listing, patch)
	listing.UpdatedAt = s.clock()

	if err := s.commit(ctx, store.Batch{Listings: []model.Listing{listing}}); err != nil {
		return model.Listing{}, err
	}

	slog.InfoContext(ctx, "listing_updated", "listing_id", listing.ID)
	out.add(events.EventListingUpdated, listing.ID, map[string]any{
		"listing_id":    listing.ID,
		"quantity_tons": listing.QuantityTons,
		"price_per_ton": listing.PricePerTon,
	})
	return listing, nil
}

func (s *Service) GetListing(ctx context.Context, id string) (model.Listing, error) {
	return s.loadListing(ctx, id)
}

func validateListing(req model.CreateListingRequest) error {
	switch {
	case strings.TrimSpace(req.Type) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidInput)
	case strings.TrimSpace(req.QualityGrade) == "":
		return fmt.Errorf("%w: quality grade is required", ErrInvalidInput)
	case strings.TrimSpace(req.Location) == "":
		return fmt.Errorf("%w: location is required", ErrInvalidInput)
	case !validAmount(req.QuantityTons):
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidInput)
	case !validAmount(req.PricePerTon):
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}
	return nil
}

func applyPatch(l *model.Listing, p model.ListingPatch) {
	if p.QuantityTons != nil {
		l.QuantityTons = *p.QuantityTons
	}
	if p.QualityGrade != nil {
		l.QualityGrade = *p.QualityGrade
	}
	if p.PricePerTon != nil {
		l.PricePerTon = *p.PricePerTon
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.ImageRef != nil {
		l.ImageRef = *p.ImageRef
	}
	if p.MoisturePercent != nil {
		l.MoisturePercent = p.MoisturePercent
	}
	if p.ProteinPercent != nil {
		l.ProteinPercent = p.ProteinPercent
	}
	if p.StorageCondition != nil {
		l.StorageCondition = *p.StorageCondition
	}
	if p.Packaging != nil {
		l.Packaging = *p.Packaging
	}
}
