package testutil

import (
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
)

var fixtureEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// UserFixture builds a model.User for tests
type UserFixture struct {
	user model.User
}

// NewUserFixture creates a verified farmer
func NewUserFixture(id string) UserFixture {
	return UserFixture{user: model.User{
		ID:        id,
		Name:      "User " + id,
		Email:     id + "@example.com",
		Role:      model.RoleFarmer,
		Verified:  true,
		CreatedAt: fixtureEpoch,
	}}
}

// WithRole sets the role
func (u UserFixture) WithRole(role model.Role) UserFixture {
	u.user.Role = role
	return u
}

// WithName sets the display name
func (u UserFixture) WithName(name string) UserFixture {
	u.user.Name = name
	return u
}

// CreatedAfter offsets the registration time, which orders transporter selection
func (u UserFixture) CreatedAfter(d time.Duration) UserFixture {
	u.user.CreatedAt = fixtureEpoch.Add(d)
	return u
}

func (u UserFixture) Build() model.User {
	return u.user
}

// ListingFixture builds a model.Listing for tests
type ListingFixture struct {
	listing model.Listing
}

// NewListingFixture creates 10 tons of Mustard Husk at 500 per ton
func NewListingFixture(id, ownerID string) ListingFixture {
	return ListingFixture{listing: model.Listing{
		ID:           id,
		OwnerID:      ownerID,
		OwnerRole:    model.RoleFarmer,
		Type:         "Mustard Husk",
		QuantityTons: 10,
		QualityGrade: "A",
		PricePerTon:  500,
		Location:     "Jaipur",
		CreatedAt:    fixtureEpoch,
		UpdatedAt:    fixtureEpoch,
	}}
}

// WithType sets the commodity type
func (l ListingFixture) WithType(commodity string) ListingFixture {
	l.listing.Type = commodity
	return l
}

// WithPrice sets the expected price per ton
func (l ListingFixture) WithPrice(price float64) ListingFixture {
	l.listing.PricePerTon = price
	return l
}

// WithLocation sets the location
func (l ListingFixture) WithLocation(location string) ListingFixture {
	l.listing.Location = location
	return l
}

// CreatedAfter offsets the creation time
func (l ListingFixture) CreatedAfter(d time.Duration) ListingFixture {
	l.listing.CreatedAt = fixtureEpoch.Add(d)
	l.listing.UpdatedAt = l.listing.CreatedAt
	return l
}

func (l ListingFixture) Build() model.Listing {
	return l.listing
}
