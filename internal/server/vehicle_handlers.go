package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dealerworks/lotsync/internal/store"
)

type vehicleJSON struct {
	ID           int64   `json:"id"`
	SKU          string  `json:"sku"`
	Name         string  `json:"name"`
	VIN          string  `json:"vin"`
	RegularPrice float64 `json:"regularPrice"`

	Version             *string  `json:"version,omitempty"`
	FinancedPrice       *float64 `json:"financedPrice,omitempty"`
	MonthlyFinancingFee *float64 `json:"monthlyFinancingFee,omitempty"`
	Make                *string  `json:"make,omitempty"`
	Model               *string  `json:"model,omitempty"`
	Bodytype            *string  `json:"bodytype,omitempty"`
	Year                *int     `json:"year,omitempty"`
	Month               *int     `json:"month,omitempty"`
	Kms                 *int     `json:"kms,omitempty"`
	Fuel                *string  `json:"fuel,omitempty"`
	Power               *int     `json:"power,omitempty"`
	Transmission        *string  `json:"transmission,omitempty"`
	Color               *string  `json:"color,omitempty"`
	Doors               *int     `json:"doors,omitempty"`
	Seats               *int     `json:"seats,omitempty"`
	EngineSize          *int     `json:"engineSize,omitempty"`
	Gears               *int     `json:"gears,omitempty"`
	Store               *string  `json:"store,omitempty"`
	City                *string  `json:"city,omitempty"`
	Address             *string  `json:"address,omitempty"`
	Numberplate         *string  `json:"numberplate,omitempty"`
	Guarantee           *string  `json:"guarantee,omitempty"`
	EnvironmentalBadge  *string  `json:"environmentalBadge,omitempty"`
	Description         *string  `json:"description,omitempty"`
	Equipment           *string  `json:"equipment,omitempty"`

	VATDeductible bool   `json:"vatDeductible"`
	Crashed       bool   `json:"crashed"`
	IsSold        bool   `json:"isSold"`
	Source        string `json:"source"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Images []imageJSON `json:"images"`
}

type imageJSON struct {
	ID        int64  `json:"id"`
	VehicleID int64  `json:"vehicleId"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	IsPrimary bool   `json:"isPrimary"`
}

func vehicleToJSON(v *store.Vehicle) vehicleJSON {
	images := make([]imageJSON, 0, len(v.Images))
	for _, img := range v.Images {
		images = append(images, imageJSON{
			ID:        img.ID,
			VehicleID: img.VehicleID,
			URL:       img.URL,
			Source:    img.Source,
			IsPrimary: img.IsPrimary,
		})
	}

	return vehicleJSON{
		ID:           v.ID,
		SKU:          v.SKU,
		Name:         v.Name,
		VIN:          v.VIN,
		RegularPrice: v.RegularPrice,

		Version:             v.Version,
		FinancedPrice:       v.FinancedPrice,
		MonthlyFinancingFee: v.MonthlyFinancingFee,
		Make:                v.Make,
		Model:               v.Model,
		Bodytype:            v.Bodytype,
		Year:                v.Year,
		Month:               v.Month,
		Kms:                 v.Kms,
		Fuel:                v.Fuel,
		Power:               v.Power,
		Transmission:        v.Transmission,
		Color:               v.Color,
		Doors:               v.Doors,
		Seats:               v.Seats,
		EngineSize:          v.EngineSize,
		Gears:               v.Gears,
		Store:               v.Store,
		City:                v.City,
		Address:             v.Address,
		Numberplate:         v.Numberplate,
		Guarantee:           v.Guarantee,
		EnvironmentalBadge:  v.EnvironmentalBadge,
		Description:         v.Description,
		Equipment:           v.Equipment,

		VATDeductible: v.VATDeductible,
		Crashed:       v.Crashed,
		IsSold:        v.IsSold,
		Source:        v.Source,

		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,

		Images: images,
	}
}

func vehiclesToJSON(vehicles []store.Vehicle) []vehicleJSON {
	result := make([]vehicleJSON, 0, len(vehicles))
	for i := range vehicles {
		result = append(result, vehicleToJSON(&vehicles[i]))
	}
	return result
}

// handleListVehicles returns the inventory, excluding sold vehicles unless
// ?include_sold=true is given.
func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	includeSold := r.URL.Query().Get("include_sold") == "true"

	vehicles, err := s.store.ListVehicles(includeSold)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, vehiclesToJSON(vehicles))
}

// handleGetVehicle returns one vehicle with its images
func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	v, err := s.store.GetVehicle(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, vehicleToJSON(v))
}

// handleSearchVehicles returns unsold vehicles whose name matches the term
func (s *Server) handleSearchVehicles(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		jsonError(w, http.StatusBadRequest, "search term required")
		return
	}

	vehicles, err := s.store.SearchVehicles(term)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, vehiclesToJSON(vehicles))
}

// handleSourceBackfill stamps legacy rows without a source as feed-sourced
func (s *Server) handleSourceBackfill(w http.ResponseWriter, r *http.Request) {
	updated, err := s.store.BackfillSource()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := s.store.SourceStats()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	counts := make(map[string]int, len(stats))
	for _, st := range stats {
		counts[st.Source] = st.Count
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"updated":  updated,
		"bySource": counts,
	})
}

type soldRequestBody struct {
	Action string `json:"action"`
	Source string `json:"source"`
}

// handleSoldVehicles counts or purges sold vehicles. Purge is the only
// hard delete in the system and never runs as part of sync.
func (s *Server) handleSoldVehicles(w http.ResponseWriter, r *http.Request) {
	var req soldRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	source := req.Source
	if source == "" {
		source = store.SourceFeed
	}

	switch req.Action {
	case "count":
		count, err := s.store.CountSold(source)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"soldCount": count, "source": source})

	case "purge":
		deleted, err := s.store.PurgeSold(source)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.logger.Info("purged sold vehicles", "source", source, "deleted", deleted)
		s.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "source": source})

	default:
		jsonError(w, http.StatusBadRequest, "action must be 'count' or 'purge'")
	}
}

// handleSetPrimaryImage marks one image primary and clears its siblings
func (s *Server) handleSetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	if err := s.store.SetPrimaryImage(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "image not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteImage removes a single image row
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid image id")
		return
	}

	if err := s.store.DeleteImage(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "image not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
