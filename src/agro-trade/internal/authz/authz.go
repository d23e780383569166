// Package authz holds the role capability table consulted once per operation.
// Ownership and party checks stay with the operation itself.
package authz

import (
	"errors"
	"fmt"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
)

var ErrForbidden = errors.New("operation not permitted for role")

type Operation string

const (
	OpCreateListing       Operation = "create_listing"
	OpUpdateListing       Operation = "update_listing"
	OpMakeOffer           Operation = "make_offer"
	OpBuyDirectly         Operation = "buy_directly"
	OpAcceptOffer         Operation = "accept_offer"
	OpRejectOffer         Operation = "reject_offer"
	OpWithdrawOffer       Operation = "withdraw_offer"
	OpReleaseEscrow       Operation = "release_escrow"
	OpCancelContract      Operation = "cancel_contract"
	OpAcceptTransport     Operation = "accept_transport"
	OpRejectTransport     Operation = "reject_transport"
	OpReassignTransporter Operation = "reassign_transporter"
	OpToggleVerification  Operation = "toggle_verification"
	OpChat                Operation = "chat"
	OpViewContract        Operation = "view_contract"
)

// every role may trade; listings carry no seller-only restriction.
var common = []Operation{
	OpCreateListing,
	OpUpdateListing,
	OpMakeOffer,
	OpBuyDirectly,
	OpWithdrawOffer,
	OpReleaseEscrow,
	OpCancelContract,
	OpReassignTransporter,
	OpChat,
	OpViewContract,
}

var capabilities = map[model.Role][]Operation{
	model.RoleFarmer:      {OpAcceptOffer, OpRejectOffer},
	model.RoleTransporter: {OpAcceptOffer, OpRejectOffer, OpAcceptTransport, OpRejectTransport},
	model.RoleBuyer:       nil,
	model.RoleAdmin:       {OpToggleVerification},
}

var table = buildTable()

func buildTable() map[model.Role]map[Operation]bool {
	t := make(map[model.Role]map[Operation]bool, len(capabilities))
	for role, ops := range capabilities {
		set := make(map[Operation]bool, len(ops)+len(common))
		for _, op := range common {
			set[op] = true
		}
		for _, op := range ops {
			set[op] = true
		}
		t[role] = set
	}
	return t
}

// Can reports whether role may invoke op. Unknown roles may do nothing.
func Can(role model.Role, op Operation) bool {
	return table[role][op]
}

// Check returns an error wrapping ErrForbidden when role may not invoke op.
func Check(role model.Role, op Operation) error {
	if !Can(role, op) {
		return fmt.Errorf("%w: %s cannot %s", ErrForbidden, role, op)
	}
	return nil
}
