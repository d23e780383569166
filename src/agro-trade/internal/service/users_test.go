package service

import (
	"errors"
	"testing"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/testutil"
	"github.com/darkelleven/agrochain/src/internal/events"
)

func TestRegisterUser(t *testing.T) {
	e := newEnv(t)

	u, err := e.svc.RegisterUser(e.ctx, model.RegisterUserRequest{Name: " Asha ", Email: "Asha@Example.com", Role: "transporter"})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Asha", u.Name)
	testutil.AssertEqual(t, "asha@example.com", u.Email)
	testutil.AssertEqual(t, model.RoleTransporter, u.Role)
	testutil.AssertEqual(t, false, u.Verified)

	stored, err := e.svc.GetUser(e.ctx, u.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, u, stored)

	feed, _ := e.st.ListActivity(e.ctx, 1)
	testutil.AssertEqual(t, "Asha registered as TRANSPORTER", feed[0].Description)
	testutil.AssertEqual(t, []string{events.EventUserRegistered}, e.events.types())

	_, err = e.svc.RegisterUser(e.ctx, model.RegisterUserRequest{Name: "Other", Email: "asha@example.com", Role: "BUYER"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("duplicate email: expected ErrInvalidState, got %v", err)
	}
}

func TestRegisterUserValidation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		req  model.RegisterUserRequest
	}{
		{"missing name", model.RegisterUserRequest{Email: "a@b.c", Role: "BUYER"}},
		{"missing email", model.RegisterUserRequest{Name: "A", Role: "BUYER"}},
		{"bad email", model.RegisterUserRequest{Name: "A", Email: "nobody", Role: "BUYER"}},
		{"bad role", model.RegisterUserRequest{Name: "A", Email: "a@b.c", Role: "MILLER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.RegisterUser(e.ctx, tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestGetUserMissing(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.GetUser(e.ctx, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleVerification(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.ToggleVerification(e.ctx, caller(e.farmer), e.buyer.ID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("farmer toggle: expected ErrUnauthorized, got %v", err)
	}

	u, err := e.svc.ToggleVerification(e.ctx, caller(e.admin), e.buyer.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, false, u.Verified)
	testutil.AssertEqual(t, "Your account verification status is now PENDING", e.notifications(e.buyer.ID)[0].Message)

	u, err = e.svc.ToggleVerification(e.ctx, caller(e.admin), e.buyer.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, true, u.Verified)
	testutil.AssertEqual(t, "Your account verification status is now APPROVED", e.notifications(e.buyer.ID)[0].Message)

	feed, _ := e.st.ListActivity(e.ctx, 1)
	testutil.AssertEqual(t, "Admin verified toggle for Meera: true", feed[0].Description)

	_, err = e.svc.ToggleVerification(e.ctx, caller(e.admin), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: expected ErrNotFound, got %v", err)
	}
}

func TestCreateListingNotifiesEveryoneElse(t *testing.T) {
	e := newEnv(t)

	l, err := e.svc.CreateListing(e.ctx, caller(e.buyer), model.CreateListingRequest{
		Type:         "Wheat Straw",
		QuantityTons: 12.5,
		QualityGrade: "B",
		PricePerTon:  320,
		Location:     "Kota",
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, model.RoleBuyer, l.OwnerRole, "any role may list")
	testutil.AssertEqual(t, e.buyer.ID, l.OwnerID)

	testutil.AssertEqual(t, 0, len(e.notifications(e.buyer.ID)))
	for _, u := range []model.User{e.farmer, e.admin, e.other} {
		notes := e.notifications(u.ID)
		testutil.AssertEqual(t, 1, len(notes), u.ID)
		testutil.AssertEqual(t, "New Wheat Straw listing (12.5T) from Meera", notes[0].Message)
	}

	feed, _ := e.st.ListActivity(e.ctx, 1)
	testutil.AssertEqual(t, "Meera listed Wheat Straw (12.5T) from Kota", feed[0].Description)

	mine, _ := e.st.ListListings(e.ctx, store.ListingFilter{OwnerID: e.buyer.ID})
	testutil.AssertEqual(t, 1, len(mine))
}

func TestCreateListingValidation(t *testing.T) {
	e := newEnv(t)
	valid := model.CreateListingRequest{Type: "Husk", QuantityTons: 1, QualityGrade: "A", PricePerTon: 1, Location: "X"}

	tests := []struct {
		name   string
		mutate func(*model.CreateListingRequest)
	}{
		{"missing type", func(r *model.CreateListingRequest) { r.Type = " " }},
		{"missing grade", func(r *model.CreateListingRequest) { r.QualityGrade = "" }},
		{"missing location", func(r *model.CreateListingRequest) { r.Location = "" }},
		{"negative quantity", func(r *model.CreateListingRequest) { r.QuantityTons = -2 }},
		{"negative price", func(r *model.CreateListingRequest) { r.PricePerTon = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := e.svc.CreateListing(e.ctx, caller(e.farmer), req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestUpdateListingOwnerOnly(t *testing.T) {
	e := newEnv(t)
	price := 550.0
	desc := "Sun dried"

	_, err := e.svc.UpdateListing(e.ctx, caller(e.other), e.listing.ID, model.ListingPatch{PricePerTon: &price})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-owner update: expected ErrUnauthorized, got %v", err)
	}

	l, err := e.svc.UpdateListing(e.ctx, caller(e.farmer), e.listing.ID, model.ListingPatch{PricePerTon: &price, Description: &desc})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 550.0, l.PricePerTon)
	testutil.AssertEqual(t, "Sun dried", l.Description)
	testutil.AssertEqual(t, e.listing.QuantityTons, l.QuantityTons)
	testutil.AssertEqual(t, e.listing.OwnerRole, l.OwnerRole)

	negative := -1.0
	_, err = e.svc.UpdateListing(e.ctx, caller(e.farmer), e.listing.ID, model.ListingPatch{QuantityTons: &negative})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative quantity: expected ErrInvalidInput, got %v", err)
	}
}
