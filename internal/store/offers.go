package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ============================================================================
// Offer Operations
// ============================================================================

// CreateOffer inserts a new Offer and sets its ID
func (s *Store) CreateOffer(o *Offer) error {
	const query = `
		INSERT INTO offers (slug, title, description, active)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, o.Slug, o.Title, o.Description, o.Active)
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	o.ID = id

	if len(o.VehicleIDs) > 0 {
		if err := s.SetOfferVehicles(o.ID, o.VehicleIDs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scanOfferRow(row rowScanner) (*Offer, error) {
	o := &Offer{}
	if err := row.Scan(&o.ID, &o.Slug, &o.Title, &o.Description, &o.Active, &o.CreatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) loadOfferVehicles(o *Offer) error {
	rows, err := s.db.Query(
		"SELECT vehicle_id FROM offer_vehicles WHERE offer_id = ? ORDER BY vehicle_id",
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query offer vehicles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan offer vehicle: %w", err)
		}
		o.VehicleIDs = append(o.VehicleIDs, id)
	}
	return rows.Err()
}

// GetOffer retrieves an offer by id with its vehicle ids
func (s *Store) GetOffer(id int64) (*Offer, error) {
	const query = "SELECT id, slug, title, description, active, created_at FROM offers WHERE id = ?"
	o, err := s.scanOfferRow(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query offer: %w", err)
	}
	if err := s.loadOfferVehicles(o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOfferBySlug retrieves an offer by slug with its vehicle ids
func (s *Store) GetOfferBySlug(slug string) (*Offer, error) {
	const query = "SELECT id, slug, title, description, active, created_at FROM offers WHERE slug = ?"
	o, err := s.scanOfferRow(s.db.QueryRow(query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("offer %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query offer: %w", err)
	}
	if err := s.loadOfferVehicles(o); err != nil {
		return nil, err
	}
	return o, nil
}

// LatestOffer retrieves the most recently created active offer
func (s *Store) LatestOffer() (*Offer, error) {
	const query = `
		SELECT id, slug, title, description, active, created_at
		FROM offers WHERE active = 1 ORDER BY created_at DESC, id DESC LIMIT 1
	`
	o, err := s.scanOfferRow(s.db.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest offer: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest offer: %w", err)
	}
	if err := s.loadOfferVehicles(o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOffers retrieves offers, newest first
func (s *Store) ListOffers(activeOnly bool) ([]Offer, error) {
	query := "SELECT id, slug, title, description, active, created_at FROM offers"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		o, err := s.scanOfferRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	for i := range offers {
		if err := s.loadOfferVehicles(&offers[i]); err != nil {
			return nil, err
		}
	}
	return offers, nil
}

// UpdateOffer updates an existing offer by ID
func (s *Store) UpdateOffer(o *Offer) error {
	const query = `
		UPDATE offers SET slug = ?, title = ?, description = ?, active = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query, o.Slug, o.Title, o.Description, o.Active, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("offer %d: %w", o.ID, ErrNotFound)
	}
	return nil
}

// DeleteOffer deletes an offer by id
func (s *Store) DeleteOffer(id int64) error {
	result, err := s.db.Exec("DELETE FROM offers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetOfferVehicles replaces the set of vehicles bundled in an offer
func (s *Store) SetOfferVehicles(offerID int64, vehicleIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM offer_vehicles WHERE offer_id = ?", offerID); err != nil {
		return fmt.Errorf("failed to clear offer vehicles: %w", err)
	}

	for _, vid := range vehicleIDs {
		if _, err := tx.Exec(
			"INSERT INTO offer_vehicles (offer_id, vehicle_id) VALUES (?, ?)",
			offerID, vid,
		); err != nil {
			return fmt.Errorf("failed to insert offer vehicle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit offer vehicles: %w", err)
	}
	return nil
}
