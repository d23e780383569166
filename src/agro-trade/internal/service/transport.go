package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/activity"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/authz"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/notify"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
)

// loadTransportRequest loads a contract the caller must currently decide on.
func (s *Service) loadTransportRequest(ctx context.Context, caller model.Caller, contractID string) (model.Contract, error) {
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return model.Contract{}, err
	}
	if !contract.AssignedTo(caller.UserID) {
		return model.Contract{}, fmt.Errorf("%w: contract %s is not assigned to caller", ErrUnauthorized, contract.ID)
	}
	if !contract.AwaitingTransportDecision() {
		return model.Contract{}, fmt.Errorf("%w: contract %s has no pending transport request", ErrInvalidState, contract.ID)
	}
	return contract, nil
}

func (s *Service) AcceptTransportRequest(ctx context.Context, caller model.Caller, contractID string) (contract model.Contract, err error) {
	defer s.track(ctx, "accept_transport", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpAcceptTransport); err != nil {
		return model.Contract{}, err
	}
	transporter, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(contractKey(contractID))
	defer unlock()

	contract, err = s.loadTransportRequest(ctx, caller, contractID)
	if err != nil {
		return model.Contract{}, err
	}

	now := s.clock()
	accepted := true
	contract.TransporterAccepted = &accepted
	contract.UpdatedAt = now

	var b store.Batch
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("%s accepted transport request for contract %s", transporter.Name, contract.ShortID()))
	notify.Broadcast(&b, now, fmt.Sprintf("%s accepted the transport request for %s", transporter.Name, contract.Commodity),
		contract.BuyerID, contract.FarmerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	slog.InfoContext(ctx, "transport_accepted", "contract_id", contract.ID, "transporter_id", transporter.ID)
	out.add(events.EventTransportAccepted, contract.ID, map[string]any{
		"contract_id":    contract.ID,
		"transporter_id": transporter.ID,
	})
	return contract, nil
}

// RejectTransportRequest clears the assignment and remembers the rejecter so
// reassignment skips them. Nothing is reassigned automatically.
func (s *Service) RejectTransportRequest(ctx context.Context, caller model.Caller, contractID string) (contract model.Contract, err error) {
	defer s.track(ctx, "reject_transport", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpRejectTransport); err != nil {
		return model.Contract{}, err
	}
	transporter, err := s.actor(ctx, caller)
	if err != nil {
		return model.Contract{}, err
	}

	unlock := s.locks.Lock(contractKey(contractID))
	defer unlock()

	contract, err = s.loadTransportRequest(ctx, caller, contractID)
	if err != nil {
		return model.Contract{}, err
	}

	now := s.clock()
	rejected := false
	contract.TransporterID = nil
	contract.TransporterAccepted = &rejected
	if !slices.Contains(contract.RejectedTransporterIDs, transporter.ID) {
		contract.RejectedTransporterIDs = append(contract.RejectedTransporterIDs, transporter.ID)
	}
	contract.UpdatedAt = now

	var b store.Batch
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("%s rejected transport request for contract %s", transporter.Name, contract.ShortID()))
	notify.Broadcast(&b, now,
		fmt.Sprintf("%s rejected the transport request for %s. A new transporter can be assigned.", transporter.Name, contract.Commodity),
		contract.BuyerID, contract.FarmerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	slog.InfoContext(ctx, "transport_rejected", "contract_id", contract.ID, "transporter_id", transporter.ID)
	out.add(events.EventTransportRejected, contract.ID, map[string]any{
		"contract_id":    contract.ID,
		"transporter_id": transporter.ID,
	})
	return contract, nil
}

// ReassignTransporter picks a new transporter for a COMPLETED contract whose
// previous transporter rejected it. Returns ErrNoTransporter when nobody is left.
func (s *Service) ReassignTransporter(ctx context.Context, caller model.Caller, contractID string) (contract model.Contract, err error) {
	defer s.track(ctx, "reassign_transporter", time.Now(), &err)

	var out outbox
	defer s.flush(ctx, &out)

	if err := permit(caller.Role, authz.OpReassignTransporter); err != nil {
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
	if contract.Status != model.ContractStatusCompleted || contract.TransporterID != nil {
		return model.Contract{}, fmt.Errorf("%w: contract %s does not need a transporter", ErrInvalidState, contract.ID)
	}

	picked, found, err := s.pickTransporter(ctx, contract.RejectedTransporterIDs)
	if err != nil {
		return model.Contract{}, err
	}
	if !found {
		return model.Contract{}, fmt.Errorf("contract %s: %w", contract.ID, ErrNoTransporter)
	}

	now := s.clock()
	contract.TransporterID = &picked.ID
	contract.TransporterAccepted = nil
	contract.UpdatedAt = now

	var b store.Batch
	b.Contracts = append(b.Contracts, contract)
	activity.Record(&b, now, fmt.Sprintf("%s reassigned transport for contract %s", actor.Name, contract.ShortID()))
	notify.Broadcast(&b, now, transportPrompt(contract), picked.ID)
	notify.Broadcast(&b, now, fmt.Sprintf("Contract %s: transport request sent to %s", contract.ShortID(), picked.Name),
		contract.BuyerID, contract.FarmerID)
	if err := s.commit(ctx, b); err != nil {
		return model.Contract{}, err
	}

	s.transportAssigned(ctx, &out, contract, picked.ID)
	return contract, nil
}
