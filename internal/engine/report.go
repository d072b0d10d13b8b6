package engine

import "fmt"

// ItemResult is the outcome of one feed record (or of the cleanup sweep,
// under the synthetic sku "CLEANUP").
type ItemResult struct {
	SKU    string `json:"sku"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// BatchReport is the result of one RunBatch invocation. Nothing here is
// persisted beyond the sync_runs audit row; cumulative progress across
// batches is the caller's job (see Merge).
type BatchReport struct {
	SessionID string

	Offset     int
	Limit      int
	Total      int
	Processed  int
	NextOffset int
	Done       bool

	Created    int
	Updated    int
	Skipped    int
	Errors     int
	MarkedSold int

	StartIndex int
	EndIndex   int

	Successful   []ItemResult
	SkippedItems []ItemResult
	Errored      []ItemResult
}

// Merge folds another batch into this report as a running total: counts
// accumulate, while progress fields and the detailed item lists reflect the
// latest batch.
func (r *BatchReport) Merge(b *BatchReport) {
	r.Created += b.Created
	r.Updated += b.Updated
	r.Skipped += b.Skipped
	r.Errors += b.Errors
	r.MarkedSold += b.MarkedSold
	r.Processed += b.Processed

	r.SessionID = b.SessionID
	r.Offset = b.Offset
	r.Limit = b.Limit
	r.Total = b.Total
	r.NextOffset = b.NextOffset
	r.Done = b.Done
	r.StartIndex = b.StartIndex
	r.EndIndex = b.EndIndex
	r.Successful = b.Successful
	r.SkippedItems = b.SkippedItems
	r.Errored = b.Errored
}

// Message renders a one-line human-readable summary
func (r *BatchReport) Message() string {
	msg := fmt.Sprintf(
		"Sync batch complete: %d created, %d updated, %d skipped, %d errors",
		r.Created, r.Updated, r.Skipped, r.Errors,
	)
	if r.MarkedSold > 0 {
		msg += fmt.Sprintf(", %d marked as sold", r.MarkedSold)
	}
	msg += fmt.Sprintf(" (records %d-%d of %d)", r.StartIndex, r.EndIndex, r.Total)
	return msg
}
