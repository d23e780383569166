package events

import "time"

// Event envelope for all events
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Key            string         `json:"key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Data           map[string]any `json:"data"`
}

// Event type constants
const (
	// Listing events
	EventListingCreated = "listing.created"
	EventListingUpdated = "listing.updated"

	// Offer events
	EventOfferMade      = "offer.made"
	EventOfferRejected  = "offer.rejected"
	EventOfferWithdrawn = "offer.withdrawn"

	// Contract events
	EventContractCreated       = "contract.created"
	EventContractStatusChanged = "contract.status_changed"
	EventContractCancelled     = "contract.cancelled"

	// Transport events
	EventTransportAssigned = "transport.assigned"
	EventTransportAccepted = "transport.accepted"
	EventTransportRejected = "transport.rejected"

	// User events
	EventUserRegistered      = "user.registered"
	EventUserVerificationSet = "user.verification_changed"
)
