package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection also keeps
	// in-memory databases coherent across queries.
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Image rows must go away with their vehicle
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// Nullable column helpers
// ============================================================================

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// ============================================================================
// Vehicle Operations
// ============================================================================

const vehicleCols = `
	id, sku, name, vin, regular_price, version, financed_price,
	monthly_financing_fee, make, model, bodytype, year, month, kms, fuel,
	power, transmission, color, doors, seats, engine_size, gears, store,
	city, address, numberplate, guarantee, environmental_badge, description,
	equipment, vat_deductible, crashed, is_sold, source, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVehicle(row rowScanner) (*Vehicle, error) {
	v := &Vehicle{}
	var (
		version, mk, model, bodytype, fuel, transmission, color          sql.NullString
		store, city, address, numberplate, guarantee, badge              sql.NullString
		description, equipment                                           sql.NullString
		financedPrice, monthlyFee                                        sql.NullFloat64
		year, month, kms, power, doors, seats, engineSize, gears         sql.NullInt64
	)

	err := row.Scan(
		&v.ID, &v.SKU, &v.Name, &v.VIN, &v.RegularPrice, &version,
		&financedPrice, &monthlyFee, &mk, &model, &bodytype, &year, &month,
		&kms, &fuel, &power, &transmission, &color, &doors, &seats,
		&engineSize, &gears, &store, &city, &address, &numberplate,
		&guarantee, &badge, &description, &equipment,
		&v.VATDeductible, &v.Crashed, &v.IsSold, &v.Source,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Version = strPtr(version)
	v.FinancedPrice = floatPtr(financedPrice)
	v.MonthlyFinancingFee = floatPtr(monthlyFee)
	v.Make = strPtr(mk)
	v.Model = strPtr(model)
	v.Bodytype = strPtr(bodytype)
	v.Year = intPtr(year)
	v.Month = intPtr(month)
	v.Kms = intPtr(kms)
	v.Fuel = strPtr(fuel)
	v.Power = intPtr(power)
	v.Transmission = strPtr(transmission)
	v.Color = strPtr(color)
	v.Doors = intPtr(doors)
	v.Seats = intPtr(seats)
	v.EngineSize = intPtr(engineSize)
	v.Gears = intPtr(gears)
	v.Store = strPtr(store)
	v.City = strPtr(city)
	v.Address = strPtr(address)
	v.Numberplate = strPtr(numberplate)
	v.Guarantee = strPtr(guarantee)
	v.EnvironmentalBadge = strPtr(badge)
	v.Description = strPtr(description)
	v.Equipment = strPtr(equipment)

	return v, nil
}

// fieldArgs returns the value columns of a vehicle in insert order
// (everything after vin/regular_price block, excluding id and timestamps).
func fieldArgs(v *Vehicle) []interface{} {
	return []interface{}{
		v.SKU, v.Name, v.VIN, v.RegularPrice, nullStr(v.Version),
		nullFloat(v.FinancedPrice), nullFloat(v.MonthlyFinancingFee),
		nullStr(v.Make), nullStr(v.Model), nullStr(v.Bodytype),
		nullInt(v.Year), nullInt(v.Month), nullInt(v.Kms), nullStr(v.Fuel),
		nullInt(v.Power), nullStr(v.Transmission), nullStr(v.Color),
		nullInt(v.Doors), nullInt(v.Seats), nullInt(v.EngineSize),
		nullInt(v.Gears), nullStr(v.Store), nullStr(v.City),
		nullStr(v.Address), nullStr(v.Numberplate), nullStr(v.Guarantee),
		nullStr(v.EnvironmentalBadge), nullStr(v.Description),
		nullStr(v.Equipment), v.VATDeductible, v.Crashed, v.IsSold, v.Source,
	}
}

// FindVehicleBySKU retrieves a vehicle by its external id, without images.
// Returns ErrNotFound if no row matches.
func (s *Store) FindVehicleBySKU(sku string) (*Vehicle, error) {
	query := "SELECT" + vehicleCols + "FROM vehicles WHERE sku = ?"
	v, err := scanVehicle(s.db.QueryRow(query, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vehicle %s: %w", sku, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query vehicle: %w", err)
	}
	return v, nil
}

// GetVehicle retrieves a vehicle by id, with its images attached
func (s *Store) GetVehicle(id int64) (*Vehicle, error) {
	query := "SELECT" + vehicleCols + "FROM vehicles WHERE id = ?"
	v, err := scanVehicle(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vehicle %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query vehicle: %w", err)
	}

	images, err := s.ListImages(v.ID)
	if err != nil {
		return nil, err
	}
	v.Images = images
	return v, nil
}

// ListVehicles retrieves vehicles ordered by creation date, newest first.
// Sold vehicles are excluded unless includeSold is set.
func (s *Store) ListVehicles(includeSold bool) ([]Vehicle, error) {
	query := "SELECT" + vehicleCols + "FROM vehicles"
	if !includeSold {
		query += " WHERE is_sold = 0"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vehicles: %w", err)
	}

	// Attach images per vehicle
	for i := range vehicles {
		images, err := s.ListImages(vehicles[i].ID)
		if err != nil {
			return nil, err
		}
		vehicles[i].Images = images
	}

	return vehicles, nil
}

// SearchVehicles retrieves unsold vehicles whose name contains the term
func (s *Store) SearchVehicles(term string) ([]Vehicle, error) {
	query := "SELECT" + vehicleCols + `FROM vehicles
		WHERE is_sold = 0 AND name LIKE ? COLLATE NOCASE
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, "%"+term+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// ============================================================================
// Reconciliation Transaction
// ============================================================================

// Tx exposes the store operations that must share one transaction during
// a per-record reconciliation: lookup, feed-image replacement, and upsert.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a single transaction, committing on nil error
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindVehicleBySKU retrieves a vehicle by external id within the transaction.
// Returns ErrNotFound if no row matches.
func (t *Tx) FindVehicleBySKU(sku string) (*Vehicle, error) {
	query := "SELECT" + vehicleCols + "FROM vehicles WHERE sku = ?"
	v, err := scanVehicle(t.tx.QueryRow(query, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vehicle %s: %w", sku, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query vehicle: %w", err)
	}
	return v, nil
}

// DeleteFeedImages removes the feed-sourced images of a vehicle.
// Manual images are left untouched.
func (t *Tx) DeleteFeedImages(vehicleID int64) error {
	_, err := t.tx.Exec(
		"DELETE FROM vehicle_images WHERE vehicle_id = ? AND source = ?",
		vehicleID, SourceFeed,
	)
	if err != nil {
		return fmt.Errorf("failed to delete feed images: %w", err)
	}
	return nil
}

// UpsertVehicle inserts the vehicle if its SKU is new, otherwise updates the
// existing row in place. Sets v.ID and reports whether a row was created.
func (t *Tx) UpsertVehicle(v *Vehicle) (created bool, err error) {
	var existingID int64
	err = t.tx.QueryRow("SELECT id FROM vehicles WHERE sku = ?", v.SKU).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to look up vehicle: %w", err)
	}

	now := time.Now().UTC()

	if errors.Is(err, sql.ErrNoRows) {
		const insertQuery = `
			INSERT INTO vehicles (
				sku, name, vin, regular_price, version, financed_price,
				monthly_financing_fee, make, model, bodytype, year, month, kms,
				fuel, power, transmission, color, doors, seats, engine_size,
				gears, store, city, address, numberplate, guarantee,
				environmental_badge, description, equipment, vat_deductible,
				crashed, is_sold, source, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		args := append(fieldArgs(v), now, now)
		result, err := t.tx.Exec(insertQuery, args...)
		if err != nil {
			return false, fmt.Errorf("failed to insert vehicle: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("failed to get last insert id: %w", err)
		}
		v.ID = id
		v.CreatedAt = now
		v.UpdatedAt = now
		return true, nil
	}

	const updateQuery = `
		UPDATE vehicles SET
			sku = ?, name = ?, vin = ?, regular_price = ?, version = ?,
			financed_price = ?, monthly_financing_fee = ?, make = ?, model = ?,
			bodytype = ?, year = ?, month = ?, kms = ?, fuel = ?, power = ?,
			transmission = ?, color = ?, doors = ?, seats = ?, engine_size = ?,
			gears = ?, store = ?, city = ?, address = ?, numberplate = ?,
			guarantee = ?, environmental_badge = ?, description = ?,
			equipment = ?, vat_deductible = ?, crashed = ?, is_sold = ?,
			source = ?, updated_at = ?
		WHERE id = ?
	`
	args := append(fieldArgs(v), now, existingID)
	if _, err := t.tx.Exec(updateQuery, args...); err != nil {
		return false, fmt.Errorf("failed to update vehicle: %w", err)
	}
	v.ID = existingID
	v.UpdatedAt = now
	return false, nil
}

// CreateImages inserts image rows for a vehicle with the given source tag
func (t *Tx) CreateImages(vehicleID int64, urls []string, source string) error {
	const query = `
		INSERT INTO vehicle_images (vehicle_id, url, source, is_primary)
		VALUES (?, ?, ?, 0)
	`
	for _, url := range urls {
		if _, err := t.tx.Exec(query, vehicleID, url, source); err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
	}
	return nil
}

// ============================================================================
// Cleanup / Sold-Marking Operations
// ============================================================================

// MarkSoldExcept flags every unsold feed-sourced vehicle whose SKU is absent
// from the given set as sold, in one bulk update. Manual vehicles are never
// affected. Returns the number of rows flagged.
func (s *Store) MarkSoldExcept(feedSKUs []string) (int64, error) {
	query := `
		UPDATE vehicles
		SET is_sold = 1, updated_at = ?
		WHERE source = ? AND is_sold = 0
	`
	args := []interface{}{time.Now().UTC(), SourceFeed}

	if len(feedSKUs) > 0 {
		placeholders := strings.Repeat("?,", len(feedSKUs)-1) + "?"
		query += " AND sku NOT IN (" + placeholders + ")"
		for _, sku := range feedSKUs {
			args = append(args, sku)
		}
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark vehicles sold: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// CountSold returns the number of sold vehicles for a source. An empty
// source counts across all sources.
func (s *Store) CountSold(source string) (int, error) {
	query := "SELECT COUNT(*) FROM vehicles WHERE is_sold = 1"
	var args []interface{}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	var count int
	err := s.db.QueryRow(query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sold vehicles: %w", err)
	}
	return count, nil
}

// PurgeSold hard-deletes sold vehicles of a source. This is the explicit
// administrative purge; sync itself never deletes rows.
func (s *Store) PurgeSold(source string) (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM vehicles WHERE is_sold = 1 AND source = ?",
		source,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sold vehicles: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// BackfillSource marks legacy rows without a source as feed-sourced
func (s *Store) BackfillSource() (int64, error) {
	result, err := s.db.Exec(
		"UPDATE vehicles SET source = ? WHERE source = '' OR source IS NULL",
		SourceFeed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill vehicle source: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// SourceStats returns vehicle counts grouped by source
func (s *Store) SourceStats() ([]SourceStat, error) {
	rows, err := s.db.Query(
		"SELECT source, COUNT(*) FROM vehicles GROUP BY source ORDER BY source",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	var stats []SourceStat
	for rows.Next() {
		var st SourceStat
		if err := rows.Scan(&st.Source, &st.Count); err != nil {
			return nil, fmt.Errorf("failed to scan source stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ============================================================================
// VehicleImage Operations
// ============================================================================

// ListImages retrieves all images of a vehicle
func (s *Store) ListImages(vehicleID int64) ([]VehicleImage, error) {
	const query = `
		SELECT id, vehicle_id, url, source, is_primary
		FROM vehicle_images WHERE vehicle_id = ? ORDER BY id
	`

	rows, err := s.db.Query(query, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []VehicleImage
	for rows.Next() {
		img := VehicleImage{}
		if err := rows.Scan(&img.ID, &img.VehicleID, &img.URL, &img.Source, &img.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// AddImage inserts a manually uploaded image and sets its ID
func (s *Store) AddImage(img *VehicleImage) error {
	const query = `
		INSERT INTO vehicle_images (vehicle_id, url, source, is_primary)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.Exec(query, img.VehicleID, img.URL, img.Source, img.IsPrimary)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	img.ID = id
	return nil
}

// DeleteImage deletes an image by id
func (s *Store) DeleteImage(id int64) error {
	result, err := s.db.Exec("DELETE FROM vehicle_images WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetPrimaryImage marks one image as the vehicle's primary and clears the
// flag on its siblings, so at most one image per vehicle is primary.
func (s *Store) SetPrimaryImage(id int64) error {
	return s.InTx(context.Background(), func(t *Tx) error {
		var vehicleID int64
		err := t.tx.QueryRow("SELECT vehicle_id FROM vehicle_images WHERE id = ?", id).Scan(&vehicleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("image %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to look up image: %w", err)
		}

		if _, err := t.tx.Exec("UPDATE vehicle_images SET is_primary = 0 WHERE vehicle_id = ?", vehicleID); err != nil {
			return fmt.Errorf("failed to clear primary flags: %w", err)
		}
		if _, err := t.tx.Exec("UPDATE vehicle_images SET is_primary = 1 WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to set primary flag: %w", err)
		}
		return nil
	})
}

// ============================================================================
// SyncRun Operations
// ============================================================================

// CreateSyncRun inserts a new SyncRun and sets its ID
func (s *Store) CreateSyncRun(run *SyncRun) error {
	const query = `
		INSERT INTO sync_runs (
			start_time, end_time, batch_offset, batch_limit, total, created,
			updated, skipped, errors, marked_sold, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.StartTime, run.EndTime, run.Offset, run.Limit, run.Total,
		run.Created, run.Updated, run.Skipped, run.Errors, run.MarkedSold,
		run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateSyncRun updates an existing SyncRun by ID
func (s *Store) UpdateSyncRun(run *SyncRun) error {
	const query = `
		UPDATE sync_runs SET
			start_time = ?, end_time = ?, batch_offset = ?, batch_limit = ?,
			total = ?, created = ?, updated = ?, skipped = ?, errors = ?,
			marked_sold = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.StartTime, run.EndTime, run.Offset, run.Limit, run.Total,
		run.Created, run.Updated, run.Skipped, run.Errors, run.MarkedSold,
		run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("sync run %d: %w", run.ID, ErrNotFound)
	}
	return nil
}

// ListSyncRuns retrieves sync runs, newest first
func (s *Store) ListSyncRuns(limit int) ([]SyncRun, error) {
	query := `
		SELECT id, start_time, end_time, batch_offset, batch_limit, total,
		       created, updated, skipped, errors, marked_sold, status, error_message
		FROM sync_runs ORDER BY start_time DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run := SyncRun{}
		err := rows.Scan(
			&run.ID, &run.StartTime, &run.EndTime, &run.Offset, &run.Limit,
			&run.Total, &run.Created, &run.Updated, &run.Skipped, &run.Errors,
			&run.MarkedSold, &run.Status, &run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}
