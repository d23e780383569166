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
)

// nextEscrowState is the escrow progression. Terminal states have no successor.
func nextEscrowState(current model.ContractStatus) (model.ContractStatus, bool) {
	switch current {
	case model.ContractStatusEscrowLocked:
		return model.ContractStatusCompleted, true
	case model.ContractStatusCompleted, model.ContractStatusOffered:
		return model.ContractStatusReleased, true
	default:
		return "", false
	}
}

// ReleaseEscrow advances a contract one step. Entering COMPLETED assigns a
// transporter when none is set and one is available.
func (s *Service) ReleaseEscrow(ctx context.Context, caller model.Caller, contractID string) (contract model.Contract, err error) {
	defer s.track(ctx, "release_escrow", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpReleaseEscrow); err != nil {
		return model.Contract{}, err
	}
	actor, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(contractKey(contractID))
	defer unlock()

	contract, err = s.loadContract(ctx, contractID)
	if err != nil {
		return model.Contract{}, err
	}
	if err := canManage(contract, caller); err != nil {
		return model.Contract{}, err
	}
	next, ok := nextEscrowState(contract.Status)
	if !ok {
		return model.Contract{}, fmt.Errorf("%w: contract %s is %s", ErrInvalidState, contract.ID, contract.Status)
	}

	now := s.clock()
	previous := contract.Status
	contract.Status = next
	contract.EscrowLocked = next == model.ContractStatusEscrowLocked
	contract.UpdatedAt = now

	var assigned *model.User
	if next == model.ContractStatusCompleted && contract.TransporterID == nil {
		t, found, err := s.pickTransporter(ctx, contract.RejectedTransporterIDs)
		if err != nil {
			return model.Contract{}, err
		}
		if found {
			assigned = &t
			contract.TransporterID = &t.ID
			contract.TransporterAccepted = nil
		}
	}

	var b store.Batch
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("%s progressed contract %s → %s", actor.Name, contract.ShortID(), next))
	notify.Broadcast(&b, now, fmt.Sprintf("Contract %s moved to %s by %s", contract.ShortID(), next, actor.Name),
		contract.BuyerID, contract.FarmerID)
	if assigned != nil {
		notify.Broadcast(&b, now, transportPrompt(contract), assigned.ID)
	}
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	s.observer.ObserveTransition(string(next))
	slog.InfoContext(ctx, "escrow_advanced",
		"contract_id", contract.ID,
		"from", previous,
		"to", next,
		"actor_id", actor.ID,
	)
	out.add(events.EventContractStatusChanged, contract.ID, map[string]any{
		"contract_id": contract.ID,
		"from":        string(previous),
		"to":          string(next),
		"actor_id":    actor.ID,
	})
	if assigned != nil {
		s.transportAssigned(ctx, &out, contract, assigned.ID)
	}
	return contract, nil
}

// CancelContract moves a non-terminal contract to CANCELLED and releases the escrow flag.
func (s *Service) CancelContract(ctx context.Context, caller model.Caller, contractID string) (contract model.Contract, err error) {
	defer s.track(ctx, "cancel_contract", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpCancelContract); err != nil {
		return model.Contract{}, err
	}
	actor, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(contractKey(contractID))
	defer unlock()

	contract, err = s.loadContract(ctx, contractID)
	if err != nil {
		return model.Contract{}, err
	}
	if err := canManage(contract, caller); err != nil {
		return model.Contract{}, err
	}
	if contract.Status.Terminal() {
		return model.Contract{}, fmt.Errorf("%w: contract %s is %s", ErrInvalidState, contract.ID, contract.Status)
	}

	now := s.clock()
	previous := contract.Status
	contract.Status = model.ContractStatusCancelled
	contract.EscrowLocked = false
	contract.UpdatedAt = now

	var b store.Batch
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("Contract %s cancelled by %s", contract.ShortID(), actor.Name))
	notify.Broadcast(&b, now, fmt.Sprintf("Contract %s cancelled", contract.ShortID()), contract.BuyerID, contract.FarmerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	s.observer.ObserveTransition(string(contract.Status))
	slog.InfoContext(ctx, "contract_cancelled", "contract_id", contract.ID, "from", previous, "actor_id", actor.ID)
	out.add(events.EventContractCancelled, contract.ID, map[string]any{
		"contract_id": contract.ID,
		"from":        string(previous),
		"actor_id":    actor.ID,
	})
	return contract, nil
}

// GetContract is visible to the parties, the assigned transporter and admins.
func (s *Service) GetContract(ctx context.Context, caller model.Caller, contractID string) (model.Contract, error) {
	if err := permit(caller.Role, authz.OpViewContract); err != nil {
		return model.Contract{}, err
	}
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return model.Contract{}, err
	}
	if !contract.IsParty(caller.UserID) && !contract.AssignedTo(caller.UserID) && caller.Role != model.RoleAdmin {
		return model.Contract{}, fmt.Errorf("%w: caller is not involved in contract %s", ErrUnauthorized, contract.ID)
	}
	return contract, nil
}

// canManage allows the buyer, the seller and admins.
func canManage(c model.Contract, caller model.Caller) error {
	if c.IsParty(caller.UserID) || caller.Role == model.RoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: caller is not a party to contract %s", ErrUnauthorized, c.ID)
}

func transportPrompt(c model.Contract) string {
	return fmt.Sprintf("Contract %s payment completed. Please accept or reject the transport request for %s.", c.ShortID(), c.Commodity)
}

func (s *Service) transportAssigned(ctx context.Context, out *outbox, c model.Contract, transporterID string) {
	slog.InfoContext(ctx, "transport_assigned", "contract_id", c.ID, "transporter_id", transporterID)
	out.add(events.EventTransportAssigned, c.ID, map[string]any{
		"contract_id":    c.ID,
		"transporter_id": transporterID,
	})
}
