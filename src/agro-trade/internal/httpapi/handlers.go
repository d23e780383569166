package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/model"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/query"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/service"
	"github.com/darkelleven/agrochain/src/internal/identity"
	"github.com/go-chi/chi/v5"
)

var errBadRequest = errors.New("bad request")

type Handlers struct {
	svc    *service.Service
	views  *query.Views
	tokens TokenService
}

func NewHandlers(svc *service.Service, views *query.Views, tokens TokenService) *Handlers {
	return &Handlers{svc: svc, views: views, tokens: tokens}
}

// HandleRegisterUser handles POST /v1/users
func (h *Handlers) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.svc.RegisterUser(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.tokens.Issue(identity.Principal{UserID: user.ID, Role: string(user.Role)})
	if err != nil {
		writeError(w, r, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, model.RegisterUserResponse{User: user, Token: token})
}

// HandleGetUser handles GET /v1/users/{id}
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, user, err)
}

// HandleToggleVerification handles POST /v1/users/{id}/verification
func (h *Handlers) HandleToggleVerification(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.ToggleVerification(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, user, err)
}

// HandleMarketplace handles GET /v1/listings?type=&q=&sort=asc|desc
func (h *Handlers) HandleMarketplace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listings, err := h.views.Marketplace(r.Context(), query.MarketplaceQuery{
		Type:       q.Get("type"),
		Text:       q.Get("q"),
		Descending: q.Get("sort") == "desc",
	})
	respond(w, r, http.StatusOK, listings, err)
}

// HandleMarketplaceTypes handles GET /v1/listings/types
func (h *Handlers) HandleMarketplaceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.views.MarketplaceTypes(r.Context())
	respond(w, r, http.StatusOK, types, err)
}

// HandleCreateListing handles POST /v1/listings
func (h *Handlers) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	var req model.CreateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	listing, err := h.svc.CreateListing(r.Context(), callerFrom(r), req)
	respond(w, r, http.StatusCreated, listing, err)
}

// HandleGetListing handles GET /v1/listings/{id}
func (h *Handlers) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.GetListing(r.Context(), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, listing, err)
}

// HandleUpdateListing handles PATCH /v1/listings/{id}
func (h *Handlers) HandleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var patch model.ListingPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	listing, err := h.svc.UpdateListing(r.Context(), callerFrom(r), chi.URLParam(r, "id"), patch)
	respond(w, r, http.StatusOK, listing, err)
}

// HandleMakeOffer handles POST /v1/listings/{id}/offers
func (h *Handlers) HandleMakeOffer(w http.ResponseWriter, r *http.Request) {
	var req model.MakeOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	offer, err := h.svc.MakeOffer(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req)
	respond(w, r, http.StatusCreated, offer, err)
}

// HandleBuyDirectly handles POST /v1/listings/{id}/purchase
func (h *Handlers) HandleBuyDirectly(w http.ResponseWriter, r *http.Request) {
	contract, err := h.svc.BuyDirectly(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusCreated, contract, err)
}

// HandleAcceptOffer handles POST /v1/listings/{id}/offers/{offerID}/accept
func (h *Handlers) HandleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	contract, err := h.svc.AcceptOffer(r.Context(), callerFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "offerID"))
	respond(w, r, http.StatusCreated, contract, err)
}

// HandleRejectOffer handles POST /v1/offers/{id}/reject
func (h *Handlers) HandleRejectOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.svc.RejectOffer(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, offer, err)
}

// HandleWithdrawOffer handles POST /v1/offers/{id}/withdraw
func (h *Handlers) HandleWithdrawOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.svc.WithdrawOffer(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, offer, err)
}

// HandleGetContract handles GET /v1/contracts/{id}
func (h *Handlers) HandleGetContract(w http.ResponseWriter, r *http.Request) {
	contract, err := h.svc.GetContract(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, contract, err)
}

// HandleReleaseEscrow handles POST /v1/contracts/{id}/advance
func (h *Handlers) HandleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	h.contractAction(w, r, h.svc.ReleaseEscrow)
}

// HandleCancelContract handles POST /v1/contracts/{id}/cancel
func (h *Handlers) HandleCancelContract(w http.ResponseWriter, r *http.Request) {
	h.contractAction(w, r, h.svc.CancelContract)
}

// HandleAcceptTransport handles POST /v1/contracts/{id}/transport/accept
func (h *Handlers) HandleAcceptTransport(w http.ResponseWriter, r *http.Request) {
	h.contractAction(w, r, h.svc.AcceptTransportRequest)
}

// HandleRejectTransport handles POST /v1/contracts/{id}/transport/reject
func (h *Handlers) HandleRejectTransport(w http.ResponseWriter, r *http.Request) {
	h.contractAction(w, r, h.svc.RejectTransportRequest)
}

// HandleReassignTransporter handles POST /v1/contracts/{id}/transport/reassign
func (h *Handlers) HandleReassignTransporter(w http.ResponseWriter, r *http.Request) {
	h.contractAction(w, r, h.svc.ReassignTransporter)
}

type contractOp func(ctx context.Context, caller model.Caller, contractID string) (model.Contract, error)

func (h *Handlers) contractAction(w http.ResponseWriter, r *http.Request, op contractOp) {
	contract, err := op(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, contract, err)
}

// HandleMyListings handles GET /v1/me/listings
func (h *Handlers) HandleMyListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.views.MyListings(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, listings, err)
}

// HandlePendingOffers handles GET /v1/me/offers
func (h *Handlers) HandlePendingOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.views.PendingOffers(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, offers, err)
}

// HandleMyContracts handles GET /v1/me/contracts
func (h *Handlers) HandleMyContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.views.MyContracts(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, contracts, err)
}

// HandleTransportRequests handles GET /v1/me/transport-requests
func (h *Handlers) HandleTransportRequests(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.views.TransportRequests(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, contracts, err)
}

// HandleNotifications handles GET /v1/me/notifications?limit=
func (h *Handlers) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := h.views.Notifications(r.Context(), callerFrom(r), limit)
	respond(w, r, http.StatusOK, notes, err)
}

// HandleMyChats handles GET /v1/me/chats
func (h *Handlers) HandleMyChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.views.Chats(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, chats, err)
}

// HandleUnreadChats handles GET /v1/me/chats/unread
func (h *Handlers) HandleUnreadChats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.views.UnreadChats(r.Context(), callerFrom(r))
	respond(w, r, http.StatusOK, summary, err)
}

// HandleActivity handles GET /v1/activity?limit=
func (h *Handlers) HandleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	feed, err := h.views.Activity(r.Context(), limit)
	respond(w, r, http.StatusOK, feed, err)
}

// HandleStartChat handles POST /v1/chats
func (h *Handlers) HandleStartChat(w http.ResponseWriter, r *http.Request) {
	var req model.StartChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	chat, err := h.svc.StartChat(r.Context(), callerFrom(r), req)
	respond(w, r, http.StatusOK, chat, err)
}

// HandleListMessages handles GET /v1/chats/{id}/messages
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.views.Messages(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, msgs, err)
}

// HandleSendMessage handles POST /v1/chats/{id}/messages
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req)
	respond(w, r, http.StatusCreated, msg, err)
}

// HandleMarkChatRead handles POST /v1/chats/{id}/read
func (h *Handlers) HandleMarkChatRead(w http.ResponseWriter, r *http.Request) {
	chat, err := h.svc.MarkChatRead(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	respond(w, r, http.StatusOK, chat, err)
}

// callerFrom reads the principal placed by the identity middleware.
func callerFrom(r *http.Request) model.Caller {
	p, _ := identity.FromContext(r.Context())
	return model.Caller{UserID: p.UserID, Role: model.Role(p.Role)}
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return fmt.Errorf("%w: failed to read request", errBadRequest)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	return nil
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	default:
		switch service.OutcomeOf(err) {
		case service.OutcomeNotFound:
			status, code = http.StatusNotFound, "not_found"
		case service.OutcomeUnauthorized:
			status, code = http.StatusForbidden, "forbidden"
		case service.OutcomeInvalidState:
			status, code = http.StatusConflict, "invalid_state"
		case service.OutcomeInvalidInput:
			status, code = http.StatusBadRequest, "invalid_input"
		}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
