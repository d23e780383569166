package authz

import (
	"errors"
	"testing"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role model.Role
		op   Operation
		want bool
	}{
		{model.RoleFarmer, OpAcceptOffer, true},
		{model.RoleTransporter, OpAcceptOffer, true},
		{model.RoleBuyer, OpAcceptOffer, false},
		{model.RoleAdmin, OpAcceptOffer, false},

		{model.RoleTransporter, OpAcceptTransport, true},
		{model.RoleTransporter, OpRejectTransport, true},
		{model.RoleFarmer, OpAcceptTransport, false},
		{model.RoleBuyer, OpRejectTransport, false},

		{model.RoleAdmin, OpToggleVerification, true},
		{model.RoleFarmer, OpToggleVerification, false},

		{model.RoleBuyer, OpCreateListing, true},
		{model.RoleBuyer, OpMakeOffer, true},
		{model.RoleAdmin, OpBuyDirectly, true},
		{model.RoleBuyer, OpReleaseEscrow, true},

		{model.Role("GUEST"), OpMakeOffer, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.op), func(t *testing.T) {
			if got := Can(tt.role, tt.op); got != tt.want {
				t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.op, got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	if err := Check(model.RoleFarmer, OpAcceptOffer); err != nil {
		t.Errorf("Check() unexpected error: %v", err)
	}
	err := Check(model.RoleBuyer, OpAcceptOffer)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Check() error = %v, want ErrForbidden", err)
	}
}
