package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/stacyai/kiosk-agent-go/internal/errors"
	"github.com/stacyai/kiosk-agent-go/internal/model"
	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
	"github.com/stacyai/kiosk-agent-go/internal/store"
)

// ViewsHandler serves the side screens: profile, shopping history, wish
// list, store map, and the idle promos. All of it is read-mostly data out
// of the local store.
type ViewsHandler struct {
	views store.ViewRepository
	orch  *orchestrator.Orchestrator
}

func NewViewsHandler(views store.ViewRepository, orch *orchestrator.Orchestrator) *ViewsHandler {
	return &ViewsHandler{
		views: views,
		orch:  orch,
	}
}

// currentUserID resolves the signed-in shopper, or an error when the kiosk
// has no authenticated session.
func (h *ViewsHandler) currentUserID() (string, error) {
	snapshot := h.orch.Snapshot()
	if snapshot.User == nil {
		return "", apperrors.NoActiveSession()
	}
	return snapshot.User.ID, nil
}

// GET /v1/profile
func (h *ViewsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUserID()
	if err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.views.Profile(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to load profile")
		writeError(w, apperrors.Store(err))
		return
	}
	if profile == nil {
		writeError(w, apperrors.NotFound("Profile"))
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// GET /v1/trips
func (h *ViewsHandler) GetTrips(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUserID()
	if err != nil {
		writeError(w, err)
		return
	}

	trips, err := h.views.Trips(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to load trips")
		writeError(w, apperrors.Store(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trips": trips})
}

// GET /v1/wishlist
func (h *ViewsHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUserID()
	if err != nil {
		writeError(w, err)
		return
	}

	items, err := h.views.Wishlist(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to load wishlist")
		writeError(w, apperrors.Store(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// POST /v1/wishlist
func (h *ViewsHandler) AddWishlistItem(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUserID()
	if err != nil {
		writeError(w, err)
		return
	}

	var offer model.Offer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if offer.Name == "" {
		writeError(w, apperrors.MissingRequired("name"))
		return
	}

	item, err := h.views.AddWishlistItem(r.Context(), userID, offer)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to add wishlist item")
		writeError(w, apperrors.Store(err))
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// GET /v1/store-map
func (h *ViewsHandler) GetStoreMap(w http.ResponseWriter, r *http.Request) {
	pins, err := h.views.AislePins(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load aisle pins")
		writeError(w, apperrors.Store(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pins": pins})
}

// GET /v1/promos
func (h *ViewsHandler) GetPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.views.Promos(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load promos")
		writeError(w, apperrors.Store(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"promos": promos})
}
