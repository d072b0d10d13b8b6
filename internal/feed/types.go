package feed

// Record is one normalized vehicle ad from the feed. Optional fields are
// pointers: nil means the feed did not carry a usable value.
type Record struct {
	SKU          *string
	Name         *string
	VIN          *string
	RegularPrice *float64

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

	PictureURLs []string
}

// MissingRequired lists which of the four acceptance fields are absent.
// A record with an empty result is acceptable for reconciliation.
func (r *Record) MissingRequired() []string {
	var missing []string
	if r.SKU == nil {
		missing = append(missing, "sku")
	}
	if r.Name == nil {
		missing = append(missing, "title")
	}
	if r.RegularPrice == nil {
		missing = append(missing, "price")
	}
	if r.VIN == nil {
		missing = append(missing, "vin")
	}
	return missing
}

// ExternalID returns the record's sku, or an empty string when absent
func (r *Record) ExternalID() string {
	if r.SKU == nil {
		return ""
	}
	return *r.SKU
}

// DisplayName returns the record's title, or an empty string when absent
func (r *Record) DisplayName() string {
	if r.Name == nil {
		return ""
	}
	return *r.Name
}
