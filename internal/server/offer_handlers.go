package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dealerworks/lotsync/internal/store"
)

type offerJSON struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	VehicleIDs  []int64   `json:"vehicleIds"`
}

type offerRequest struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// offerUpdateRequest uses pointers so an omitted field leaves the stored
// value alone instead of zeroing it.
type offerUpdateRequest struct {
	Slug        *string `json:"slug"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func offerToJSON(o *store.Offer) offerJSON {
	ids := o.VehicleIDs
	if ids == nil {
		ids = []int64{}
	}
	return offerJSON{
		ID:          o.ID,
		Slug:        o.Slug,
		Title:       o.Title,
		Description: o.Description,
		Active:      o.Active,
		CreatedAt:   o.CreatedAt,
		VehicleIDs:  ids,
	}
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	offers, err := s.store.ListOffers(activeOnly)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]offerJSON, 0, len(offers))
	for i := range offers {
		result = append(result, offerToJSON(&offers[i]))
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Slug == "" || req.Title == "" {
		jsonError(w, http.StatusBadRequest, "slug and title are required")
		return
	}

	offer := &store.Offer{
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		Active:      req.Active,
	}
	if err := s.store.CreateOffer(offer); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			jsonError(w, http.StatusConflict, "offer with slug '"+req.Slug+"' already exists")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, offerToJSON(offer))
}

// handleLatestOffer returns the most recently created active offer
func (s *Server) handleLatestOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := s.store.LatestOffer()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "no active offer")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, offerToJSON(offer))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, ok := s.offerFromPath(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, offerToJSON(offer))
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	offer, ok := s.offerFromPath(w, r)
	if !ok {
		return
	}

	var req offerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Slug != nil && *req.Slug != "" {
		offer.Slug = *req.Slug
	}
	if req.Title != nil && *req.Title != "" {
		offer.Title = *req.Title
	}
	if req.Description != nil {
		offer.Description = *req.Description
	}
	if req.Active != nil {
		offer.Active = *req.Active
	}

	if err := s.store.UpdateOffer(offer); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, offerToJSON(offer))
}

func (s *Server) handleDeleteOffer(w http.ResponseWriter, r *http.Request) {
	offer, ok := s.offerFromPath(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteOffer(offer.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "offer not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type offerVehiclesRequest struct {
	VehicleIDs []int64 `json:"vehicleIds"`
}

// handleSetOfferVehicles replaces the offer's vehicle membership in full
func (s *Server) handleSetOfferVehicles(w http.ResponseWriter, r *http.Request) {
	offer, ok := s.offerFromPath(w, r)
	if !ok {
		return
	}

	var req offerVehiclesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.store.SetOfferVehicles(offer.ID, req.VehicleIDs); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, err := s.store.GetOffer(offer.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, offerToJSON(updated))
}

// offerFromPath loads the offer named by the {id} path value, writing the
// error response itself when the lookup fails. A non-numeric value is
// treated as a slug.
func (s *Server) offerFromPath(w http.ResponseWriter, r *http.Request) (*store.Offer, bool) {
	var offer *store.Offer
	var err error

	key := r.PathValue("id")
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil {
		offer, err = s.store.GetOffer(id)
	} else {
		offer, err = s.store.GetOfferBySlug(key)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "offer not found")
			return nil, false
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return offer, true
}
