package server

import (
	"encoding/json"
	"net/http"

	"github.com/dealerworks/lotsync/internal/engine"
)

type syncRequestBody struct {
	Offset      int    `json:"offset"`
	Limit       int    `json:"limit"`
	CleanupMode bool   `json:"cleanupMode"`
	SyncSession string `json:"syncSession"`
}

type syncResponseBody struct {
	Message      string       `json:"message"`
	SyncSession  string       `json:"syncSession"`
	NextOffset   int          `json:"nextOffset"`
	Total        int          `json:"total"`
	Done         bool         `json:"done"`
	Processed    int          `json:"processed"`
	CreatedCount int          `json:"createdCount"`
	UpdatedCount int          `json:"updatedCount"`
	SkippedCount int          `json:"skippedCount"`
	ErrorCount   int          `json:"errorCount"`
	MarkedAsSold int          `json:"markedAsSold"`
	Results      syncResults  `json:"results"`
	BatchDetails batchDetails `json:"batchDetails"`
}

type syncResults struct {
	Successful []engine.ItemResult `json:"successful"`
	Skipped    []engine.ItemResult `json:"skipped"`
	Errors     []engine.ItemResult `json:"errors"`
}

type batchDetails struct {
	StartIndex   int `json:"startIndex"`
	EndIndex     int `json:"endIndex"`
	TotalInBatch int `json:"totalInBatch"`
}

// handleSync runs one reconciliation batch and returns its report. The
// caller pages through the feed by echoing nextOffset and syncSession back
// until done is true.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req := syncRequestBody{Limit: engine.DefaultBatchLimit}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	if req.Offset < 0 {
		jsonError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}
	if req.Limit < 1 || req.Limit > engine.MaxBatchLimit {
		jsonError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	report, err := s.engine.RunBatch(r.Context(), engine.BatchOptions{
		Offset:      req.Offset,
		Limit:       req.Limit,
		CleanupMode: req.CleanupMode,
		SessionID:   req.SyncSession,
	})
	if err != nil {
		s.logger.Error("sync batch failed", "offset", req.Offset, "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, syncResponseBody{
		Message:      report.Message(),
		SyncSession:  report.SessionID,
		NextOffset:   report.NextOffset,
		Total:        report.Total,
		Done:         report.Done,
		Processed:    report.Processed,
		CreatedCount: report.Created,
		UpdatedCount: report.Updated,
		SkippedCount: report.Skipped,
		ErrorCount:   report.Errors,
		MarkedAsSold: report.MarkedSold,
		Results: syncResults{
			Successful: emptyIfNil(report.Successful),
			Skipped:    emptyIfNil(report.SkippedItems),
			Errors:     emptyIfNil(report.Errored),
		},
		BatchDetails: batchDetails{
			StartIndex:   report.StartIndex,
			EndIndex:     report.EndIndex,
			TotalInBatch: report.Processed,
		},
	})
}

// emptyIfNil keeps the JSON item lists as [] instead of null
func emptyIfNil(items []engine.ItemResult) []engine.ItemResult {
	if items == nil {
		return []engine.ItemResult{}
	}
	return items
}
