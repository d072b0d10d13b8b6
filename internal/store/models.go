package store

import "time"

// Vehicle source discriminators. Feed-sourced rows are owned by the sync
// process and are soft-deleted only; manual rows are never touched by sync.
const (
	SourceFeed   = "feed"
	SourceManual = "manual"
)

// Vehicle is a car in the local inventory, keyed uniquely by SKU
// (the feed's external id). Optional feed fields are pointers so that
// absent values round-trip as NULL.
type Vehicle struct {
	ID           int64
	SKU          string
	Name         string
	VIN          string
	RegularPrice float64

	Version             *string
	FinancedPrice       *float64
	MonthlyFinancingFee *float64
	Make                *string
	Model               *string
	Bodytype            *string
	Year                *int
	Month               *int
	Kms                 *int
	Fuel                *string
	Power               *int
	Transmission        *string
	Color               *string
	Doors               *int
	Seats               *int
	EngineSize          *int
	Gears               *int
	Store               *string
	City                *string
	Address             *string
	Numberplate         *string
	Guarantee           *string
	EnvironmentalBadge  *string
	Description         *string
	Equipment           *string

	VATDeductible bool
	Crashed       bool
	IsSold        bool
	Source        string // "feed" or "manual"

	CreatedAt time.Time
	UpdatedAt time.Time

	Images []VehicleImage
}

// VehicleImage belongs to exactly one vehicle
type VehicleImage struct {
	ID        int64
	VehicleID int64
	URL       string
	Source    string // "feed" or "manual"
	IsPrimary bool
}

// Offer is a promotional bundle of vehicles built in the back office
type Offer struct {
	ID          int64
	Slug        string
	Title       string
	Description string
	Active      bool
	CreatedAt   time.Time
	VehicleIDs  []int64
}

// SyncRun records one batch invocation for auditing
type SyncRun struct {
	ID           int64
	StartTime    time.Time
	EndTime      time.Time
	Offset       int
	Limit        int
	Total        int
	Created      int
	Updated      int
	Skipped      int
	Errors       int
	MarkedSold   int
	Status       string // "success", "partial", "failed"
	ErrorMessage string
}

// SourceStat is a per-source vehicle count
type SourceStat struct {
	Source string
	Count  int
}
