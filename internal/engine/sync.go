package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealerworks/lotsync/internal/feed"
	"github.com/dealerworks/lotsync/internal/store"
)

// Batch size bounds. The upper bound caps per-call duration and memory;
// callers drive a full-feed sync by paging with increasing offsets.
const (
	DefaultBatchLimit = 50
	MaxBatchLimit     = 100
)

// CleanupSKU is the synthetic external id used to report a failed
// sold-marking sweep in a batch's error list.
const CleanupSKU = "CLEANUP"

// BatchOptions selects the slice of the feed to reconcile.
type BatchOptions struct {
	Offset      int
	Limit       int
	CleanupMode bool
	// SessionID, when echoed back from a previous batch, lets the engine
	// reuse that batch's parsed feed instead of re-fetching.
	SessionID string
}

// Engine runs the feed synchronization pipeline: fetch, parse, optional
// sold-marking sweep, then per-record transactional reconciliation.
type Engine struct {
	store  *store.Store
	client *feed.Client
	cache  *feedCache
	logger *slog.Logger
}

// New creates an Engine. cacheTTL <= 0 disables the per-session feed cache.
func New(st *store.Store, client *feed.Client, cacheTTL time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		client: client,
		cache:  newFeedCache(cacheTTL),
		logger: logger,
	}
}

// RunBatch reconciles one bounded slice of the feed against the store.
// A feed fetch or structural parse failure aborts the whole call; every
// other failure is absorbed into the report so the caller always gets a
// best-effort summary. Records are processed strictly in feed order.
func (e *Engine) RunBatch(ctx context.Context, opts BatchOptions) (*BatchReport, error) {
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultBatchLimit
	}
	if opts.Limit > MaxBatchLimit {
		opts.Limit = MaxBatchLimit
	}

	run := &store.SyncRun{
		StartTime: time.Now().UTC(),
		Offset:    opts.Offset,
		Limit:     opts.Limit,
		Status:    "running",
	}
	if err := e.store.CreateSyncRun(run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	records, sessionID, err := e.loadFeed(ctx, opts.SessionID)
	if err != nil {
		run.Status = "failed"
		run.ErrorMessage = err.Error()
		run.EndTime = time.Now().UTC()
		if uerr := e.store.UpdateSyncRun(run); uerr != nil {
			e.logger.Error("failed to update sync run record", "error", uerr)
		}
		return nil, err
	}

	total := len(records)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	batch := records[start:end]

	report := &BatchReport{
		SessionID:  sessionID,
		Offset:     opts.Offset,
		Limit:      opts.Limit,
		Total:      total,
		StartIndex: start,
		EndIndex:   end,
	}

	e.logger.Info("starting sync batch",
		"offset", opts.Offset,
		"limit", opts.Limit,
		"total", total,
		"cleanup", opts.CleanupMode,
	)

	// The sold-marking sweep runs at most once per sync cycle: only on the
	// first page, before the per-record loop. Its failure never blocks
	// reconciliation.
	if opts.CleanupMode && opts.Offset == 0 {
		e.runCleanup(records, report)
	}

	for i := range batch {
		rec := &batch[i]

		if missing := rec.MissingRequired(); len(missing) > 0 {
			sku := rec.ExternalID()
			if sku == "" {
				sku = "UNKNOWN"
			}
			report.Skipped++
			report.SkippedItems = append(report.SkippedItems, ItemResult{
				SKU:    sku,
				Name:   rec.DisplayName(),
				Reason: "missing required fields: " + strings.Join(missing, ", "),
			})
			continue
		}

		created, err := e.reconcile(ctx, rec)
		if err != nil {
			e.logger.Error("failed to process vehicle",
				"sku", rec.ExternalID(),
				"name", rec.DisplayName(),
				"error", err,
			)
			report.Errors++
			report.Errored = append(report.Errored, ItemResult{
				SKU:    rec.ExternalID(),
				Name:   rec.DisplayName(),
				Reason: err.Error(),
			})
			continue
		}

		if created {
			report.Created++
			report.Successful = append(report.Successful, ItemResult{
				SKU:    rec.ExternalID(),
				Name:   rec.DisplayName(),
				Reason: "created",
			})
		} else {
			report.Updated++
			report.Successful = append(report.Successful, ItemResult{
				SKU:    rec.ExternalID(),
				Name:   rec.DisplayName(),
				Reason: "updated",
			})
		}
	}

	report.Processed = len(batch)
	report.NextOffset = opts.Offset + report.Processed
	report.Done = report.NextOffset >= total

	run.Total = total
	run.Created = report.Created
	run.Updated = report.Updated
	run.Skipped = report.Skipped
	run.Errors = report.Errors
	run.MarkedSold = report.MarkedSold
	run.EndTime = time.Now().UTC()
	if report.Errors > 0 {
		run.Status = "partial"
	} else {
		run.Status = "success"
	}
	if err := e.store.UpdateSyncRun(run); err != nil {
		e.logger.Error("failed to update sync run record", "error", err)
	}

	e.logger.Info("sync batch completed",
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"marked_sold", report.MarkedSold,
		"next_offset", report.NextOffset,
		"done", report.Done,
	)

	return report, nil
}

// loadFeed returns the parsed feed, reusing the session's cached parse when
// fresh. The returned session id identifies this parse for follow-up batches.
func (e *Engine) loadFeed(ctx context.Context, sessionID string) ([]feed.Record, string, error) {
	if records, ok := e.cache.get(sessionID); ok {
		e.logger.Debug("reusing cached feed parse", "session", sessionID, "records", len(records))
		return records, sessionID, nil
	}

	raw, err := e.client.Fetch(ctx)
	if err != nil {
		return nil, "", err
	}

	records, err := feed.Parse(raw)
	if err != nil {
		return nil, "", err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e.cache.put(sessionID, records)

	return records, sessionID, nil
}

// runCleanup flags feed-sourced vehicles that vanished from the feed as
// sold. Every sku present anywhere in the feed counts, not just this
// batch's slice.
func (e *Engine) runCleanup(records []feed.Record, report *BatchReport) {
	skus := make([]string, 0, len(records))
	for i := range records {
		if sku := records[i].ExternalID(); sku != "" {
			skus = append(skus, sku)
		}
	}

	count, err := e.store.MarkSoldExcept(skus)
	if err != nil {
		e.logger.Error("sold-marking sweep failed", "error", err)
		report.Errors++
		report.Errored = append(report.Errored, ItemResult{
			SKU:    CleanupSKU,
			Reason: err.Error(),
		})
		return
	}

	report.MarkedSold = int(count)
	e.logger.Info("sold-marking sweep completed", "marked", count, "feed_skus", len(skus))
}

// reconcile upserts one accepted record inside a single transaction:
// existing feed images are dropped and recreated from the record so the
// vehicle is never observed half-updated. Manual images are not touched.
func (e *Engine) reconcile(ctx context.Context, rec *feed.Record) (created bool, err error) {
	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.FindVehicleBySKU(*rec.SKU)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil {
			if err := tx.DeleteFeedImages(existing.ID); err != nil {
				return err
			}
		}

		v := vehicleFromRecord(rec)
		created, err = tx.UpsertVehicle(v)
		if err != nil {
			return err
		}

		return tx.CreateImages(v.ID, rec.PictureURLs, store.SourceFeed)
	})
	return created, err
}

// vehicleFromRecord maps an accepted feed record onto the persisted shape.
// A vehicle touched by sync is always feed-sourced and back on the market.
func vehicleFromRecord(rec *feed.Record) *store.Vehicle {
	return &store.Vehicle{
		SKU:          *rec.SKU,
		Name:         *rec.Name,
		VIN:          *rec.VIN,
		RegularPrice: *rec.RegularPrice,

		Version:             rec.Version,
		FinancedPrice:       rec.FinancedPrice,
		MonthlyFinancingFee: rec.MonthlyFinancingFee,
		Make:                rec.Make,
		Model:               rec.Model,
		Bodytype:            rec.Bodytype,
		Year:                rec.Year,
		Month:               rec.Month,
		Kms:                 rec.Kms,
		Fuel:                rec.Fuel,
		Power:               rec.Power,
		Transmission:        rec.Transmission,
		Color:               rec.Color,
		Doors:               rec.Doors,
		Seats:               rec.Seats,
		EngineSize:          rec.EngineSize,
		Gears:               rec.Gears,
		Store:               rec.Store,
		City:                rec.City,
		Address:             rec.Address,
		Numberplate:         rec.Numberplate,
		Guarantee:           rec.Guarantee,
		EnvironmentalBadge:  rec.EnvironmentalBadge,
		Description:         rec.Description,
		Equipment:           rec.Equipment,

		VATDeductible: rec.VATDeductible,
		Crashed:       rec.Crashed,
		IsSold:        false,
		Source:        store.SourceFeed,
	}
}
