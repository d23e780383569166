package httpapi

import (
	"net/http"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/query"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/service"
	"github.com/darkelleven/agrochain/src/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TokenService issues tokens at registration and verifies them on every other call.
type TokenService interface {
	identity.Verifier
	Issue(p identity.Principal) (string, error)
}

func NewRouter(svc *service.Service, views *query.Views, tokens TokenService, metricsHandler http.Handler) http.Handler {
	h := NewHandlers(svc, views, tokens)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/v1/users", h.HandleRegisterUser)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(tokens))

		r.Get("/v1/users/{id}", h.HandleGetUser)
		r.Post("/v1/users/{id}/verification", h.HandleToggleVerification)

		r.Route("/v1/listings", func(r chi.Router) {
			r.Get("/", h.HandleMarketplace)
			r.Post("/", h.HandleCreateListing)
			r.Get("/types", h.HandleMarketplaceTypes)
			r.Get("/{id}", h.HandleGetListing)
			r.Patch("/{id}", h.HandleUpdateListing)
			r.Post("/{id}/offers", h.HandleMakeOffer)
			r.Post("/{id}/purchase", h.HandleBuyDirectly)
			r.Post("/{id}/offers/{offerID}/accept", h.HandleAcceptOffer)
		})

		r.Post("/v1/offers/{id}/reject", h.HandleRejectOffer)
		r.Post("/v1/offers/{id}/withdraw", h.HandleWithdrawOffer)

		r.Route("/v1/contracts/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetContract)
			r.Post("/advance", h.HandleReleaseEscrow)
			r.Post("/cancel", h.HandleCancelContract)
			r.Post("/transport/accept", h.HandleAcceptTransport)
			r.Post("/transport/reject", h.HandleRejectTransport)
			r.Post("/transport/reassign", h.HandleReassignTransporter)
		})

		r.Route("/v1/me", func(r chi.Router) {
			r.Get("/listings", h.HandleMyListings)
			r.Get("/offers", h.HandlePendingOffers)
			r.Get("/contracts", h.HandleMyContracts)
			r.Get("/transport-requests", h.HandleTransportRequests)
			r.Get("/notifications", h.HandleNotifications)
			r.Get("/chats", h.HandleMyChats)
			r.Get("/chats/unread", h.HandleUnreadChats)
		})

		r.Get("/v1/activity", h.HandleActivity)

		r.Post("/v1/chats", h.HandleStartChat)
		r.Get("/v1/chats/{id}/messages", h.HandleListMessages)
		r.Post("/v1/chats/{id}/messages", h.HandleSendMessage)
		r.Post("/v1/chats/{id}/read", h.HandleMarkChatRead)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"agro-trade"}`))
}
