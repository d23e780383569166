package model

import (
	"slices"
	"strings"
	"time"
)

type Role string

const (
	RoleFarmer      Role = "FARMER"
	RoleTransporter Role = "TRANSPORTER"
	RoleBuyer       Role = "BUYER"
	RoleAdmin       Role = "ADMIN"
)

// ParseRole accepts any casing of a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleFarmer, RoleTransporter, RoleBuyer, RoleAdmin:
		return r, true
	}
	return "", false
}

// Caller is the authenticated identity an operation runs as.
type Caller struct {
	UserID string
	Role   Role
}

type User struct {
	ID        string    `json:"id" bson:"id" firestore:"id"`
	Name      string    `json:"name" bson:"name" firestore:"name"`
	Email     string    `json:"email" bson:"email" firestore:"email"`
	Role      Role      `json:"role" bson:"role" firestore:"role"`
	Verified  bool      `json:"verified" bson:"verified" firestore:"verified"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
}

type Listing struct {
	ID        string `json:"id" bson:"id" firestore:"id"`
	OwnerID   string `json:"owner_id" bson:"owner_id" firestore:"owner_id"`
	OwnerRole Role   `json:"owner_role" bson:"owner_role" firestore:"owner_role"`

	Type         string  `json:"type" bson:"type" firestore:"type"`
	QuantityTons float64 `json:"quantity_tons" bson:"quantity_tons" firestore:"quantity_tons"`
	QualityGrade string  `json:"quality_grade" bson:"quality_grade" firestore:"quality_grade"`
	PricePerTon  float64 `json:"price_per_ton" bson:"price_per_ton" firestore:"price_per_ton"`
	Location     string  `json:"location" bson:"location" firestore:"location"`

	Description      string   `json:"description,omitempty" bson:"description,omitempty" firestore:"description,omitempty"`
	ImageRef         string   `json:"image_ref,omitempty" bson:"image_ref,omitempty" firestore:"image_ref,omitempty"`
	MoisturePercent  *float64 `json:"moisture_percent,omitempty" bson:"moisture_percent,omitempty" firestore:"moisture_percent,omitempty"`
	ProteinPercent   *float64 `json:"protein_percent,omitempty" bson:"protein_percent,omitempty" firestore:"protein_percent,omitempty"`
	StorageCondition string   `json:"storage_condition,omitempty" bson:"storage_condition,omitempty" firestore:"storage_condition,omitempty"`
	Packaging        string   `json:"packaging,omitempty" bson:"packaging,omitempty" firestore:"packaging,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" firestore:"updated_at"`
}

// Clone returns a copy that shares no pointers with l.
func (l Listing) Clone() Listing {
	if l.MoisturePercent != nil {
		v := *l.MoisturePercent
		l.MoisturePercent = &v
	}
	if l.ProteinPercent != nil {
		v := *l.ProteinPercent
		l.ProteinPercent = &v
	}
	return l
}

type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "PENDING"
	OfferStatusAccepted  OfferStatus = "ACCEPTED"
	OfferStatusRejected  OfferStatus = "REJECTED"
	OfferStatusWithdrawn OfferStatus = "WITHDRAWN"
)

type Offer struct {
	ID          string      `json:"id" bson:"id" firestore:"id"`
	ListingID   string      `json:"listing_id" bson:"listing_id" firestore:"listing_id"`
	BuyerID     string      `json:"buyer_id" bson:"buyer_id" firestore:"buyer_id"`
	PricePerTon float64     `json:"price_per_ton" bson:"price_per_ton" firestore:"price_per_ton"`
	Message     string      `json:"message" bson:"message" firestore:"message"`
	Status      OfferStatus `json:"status" bson:"status" firestore:"status"`
	ContractID  string      `json:"contract_id,omitempty" bson:"contract_id,omitempty" firestore:"contract_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at" bson:"created_at" firestore:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" bson:"updated_at" firestore:"updated_at"`
}

// Open reports whether the offer can still be accepted.
func (o Offer) Open() bool {
	return o.Status == OfferStatusPending
}

type ContractStatus string

const (
	// ContractStatusOffered is kept for schema compatibility; no operation produces it.
	ContractStatusOffered      ContractStatus = "OFFERED"
	ContractStatusEscrowLocked ContractStatus = "ESCROW_LOCKED"
	ContractStatusCompleted    ContractStatus = "COMPLETED"
	ContractStatusReleased     ContractStatus = "RELEASED"
	ContractStatusCancelled    ContractStatus = "CANCELLED"
)

// Terminal reports whether no further transition is defined.
func (s ContractStatus) Terminal() bool {
	return s == ContractStatusReleased || s == ContractStatusCancelled
}

type Contract struct {
	ID        string `json:"id" bson:"id" firestore:"id"`
	ListingID string `json:"listing_id" bson:"listing_id" firestore:"listing_id"`
	OfferID   string `json:"offer_id" bson:"offer_id" firestore:"offer_id"`
	FarmerID  string `json:"farmer_id" bson:"farmer_id" firestore:"farmer_id"`
	BuyerID   string `json:"buyer_id" bson:"buyer_id" firestore:"buyer_id"`
	Commodity string `json:"commodity" bson:"commodity" firestore:"commodity"`

	PricePerTon  float64 `json:"price_per_ton" bson:"price_per_ton" firestore:"price_per_ton"`
	QuantityTons float64 `json:"quantity_tons" bson:"quantity_tons" firestore:"quantity_tons"`
	TotalValue   float64 `json:"total_value" bson:"total_value" firestore:"total_value"`

	Status       ContractStatus `json:"status" bson:"status" firestore:"status"`
	EscrowLocked bool           `json:"escrow_locked" bson:"escrow_locked" firestore:"escrow_locked"`

	TransporterID          *string  `json:"transporter_id" bson:"transporter_id" firestore:"transporter_id"`
	TransporterAccepted    *bool    `json:"transporter_accepted" bson:"transporter_accepted" firestore:"transporter_accepted"`
	RejectedTransporterIDs []string `json:"rejected_transporter_ids,omitempty" bson:"rejected_transporter_ids,omitempty" firestore:"rejected_transporter_ids,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" firestore:"updated_at"`
}

// Clone returns a copy that shares no pointers or slices with c.
func (c Contract) Clone() Contract {
	if c.TransporterID != nil {
		id := *c.TransporterID
		c.TransporterID = &id
	}
	if c.TransporterAccepted != nil {
		v := *c.TransporterAccepted
		c.TransporterAccepted = &v
	}
	c.RejectedTransporterIDs = slices.Clone(c.RejectedTransporterIDs)
	return c
}

// ShortID is the abbreviated id used in human-readable messages.
func (c Contract) ShortID() string {
	if len(c.ID) <= 6 {
		return c.ID
	}
	return c.ID[:6]
}

// IsParty reports whether userID is the buyer or the seller.
func (c Contract) IsParty(userID string) bool {
	return userID != "" && (c.BuyerID == userID || c.FarmerID == userID)
}

// AssignedTo reports whether userID is the assigned transporter.
func (c Contract) AssignedTo(userID string) bool {
	return c.TransporterID != nil && *c.TransporterID == userID
}

// AwaitingTransportDecision reports whether the assigned transporter has not decided yet.
func (c Contract) AwaitingTransportDecision() bool {
	return c.Status == ContractStatusCompleted && c.TransporterID != nil && c.TransporterAccepted == nil
}

type Notification struct {
	ID        string    `json:"id" bson:"id" firestore:"id"`
	UserID    string    `json:"user_id" bson:"user_id" firestore:"user_id"`
	Message   string    `json:"message" bson:"message" firestore:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
}

type ActivityEntry struct {
	ID          string    `json:"id" bson:"id" firestore:"id"`
	Description string    `json:"description" bson:"description" firestore:"description"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
}

type Chat struct {
	ID              string     `json:"id" bson:"id" firestore:"id"`
	PairKey         string     `json:"-" bson:"pair_key" firestore:"pair_key"`
	Participants    []string   `json:"participants" bson:"participants" firestore:"participants"`
	ListingID       string     `json:"listing_id,omitempty" bson:"listing_id,omitempty" firestore:"listing_id,omitempty"`
	LastMessage     string     `json:"last_message,omitempty" bson:"last_message,omitempty" firestore:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty" bson:"last_message_time,omitempty" firestore:"last_message_time,omitempty"`
	UnreadBy        string     `json:"unread_by,omitempty" bson:"unread_by,omitempty" firestore:"unread_by,omitempty"`
	UnreadCount     int        `json:"unread_count" bson:"unread_count" firestore:"unread_count"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at" firestore:"created_at"`
}

// ChatPairKey identifies the conversation between two users regardless of order.
func ChatPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Clone returns a copy that shares no pointers or slices with c.
func (c Chat) Clone() Chat {
	c.Participants = slices.Clone(c.Participants)
	if c.LastMessageTime != nil {
		t := *c.LastMessageTime
		c.LastMessageTime = &t
	}
	return c
}

func (c Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

type ChatMessage struct {
	ID         string    `json:"id" bson:"id" firestore:"id"`
	ChatID     string    `json:"chat_id" bson:"chat_id" firestore:"chat_id"`
	SenderID   string    `json:"sender_id" bson:"sender_id" firestore:"sender_id"`
	ReceiverID string    `json:"receiver_id" bson:"receiver_id" firestore:"receiver_id"`
	Text       string    `json:"text" bson:"text" firestore:"text"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
}
