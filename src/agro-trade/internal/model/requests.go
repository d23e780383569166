package model

// Request payloads accepted by the service layer.

type RegisterUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type RegisterUserResponse struct {
	User  User   `json:"user"`
	Token string `json:"token,omitempty"`
}

type CreateListingRequest struct {
	Type             string   `json:"type"`
	QuantityTons     float64  `json:"quantity_tons"`
	QualityGrade     string   `json:"quality_grade"`
	PricePerTon      float64  `json:"price_per_ton"`
	Location         string   `json:"location"`
	Description      string   `json:"description,omitempty"`
	ImageRef         string   `json:"image_ref,omitempty"`
	MoisturePercent  *float64 `json:"moisture_percent,omitempty"`
	ProteinPercent   *float64 `json:"protein_percent,omitempty"`
	StorageCondition string   `json:"storage_condition,omitempty"`
	Packaging        string   `json:"packaging,omitempty"`
}

// ListingPatch updates a listing in place. Nil fields are left unchanged.
type ListingPatch struct {
	QuantityTons     *float64 `json:"quantity_tons,omitempty"`
	QualityGrade     *string  `json:"quality_grade,omitempty"`
	PricePerTon      *float64 `json:"price_per_ton,omitempty"`
	Location         *string  `json:"location,omitempty"`
	Description      *string  `json:"description,omitempty"`
	ImageRef         *string  `json:"image_ref,omitempty"`
	MoisturePercent  *float64 `json:"moisture_percent,omitempty"`
	ProteinPercent   *float64 `json:"protein_percent,omitempty"`
	StorageCondition *string  `json:"storage_condition,omitempty"`
	Packaging        *string  `json:"packaging,omitempty"`
}

type MakeOfferRequest struct {
	PricePerTon float64 `json:"price_per_ton"`
	Message     string  `json:"message"`
}

type StartChatRequest struct {
	UserID    string `json:"user_id"`
	ListingID string `json:"listing_id,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

type UnreadSummary struct {
	Chats  int `json:"chats"`
	Unread int `json:"unread"`
}
