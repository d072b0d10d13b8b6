package server

import (
	"net/http"
	"time"
)

type syncRunJSON struct {
	ID         int64     `json:"id"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	MarkedSold int       `json:"markedSold"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

type statusResponse struct {
	FeedURL          string         `json:"feedUrl"`
	VehiclesBySource map[string]int `json:"vehiclesBySource"`
	SoldCount        int            `json:"soldCount"`
	RecentRuns       []syncRunJSON  `json:"recentRuns"`
}

// handleStatus reports inventory counts per source and the recent sync runs
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SourceStats()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	bySource := make(map[string]int, len(stats))
	for _, st := range stats {
		bySource[st.Source] = st.Count
	}

	runs, err := s.store.ListSyncRuns(10)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent := make([]syncRunJSON, 0, len(runs))
	for _, run := range runs {
		recent = append(recent, syncRunJSON{
			ID:         run.ID,
			StartTime:  run.StartTime,
			EndTime:    run.EndTime,
			Offset:     run.Offset,
			Limit:      run.Limit,
			Total:      run.Total,
			Created:    run.Created,
			Updated:    run.Updated,
			Skipped:    run.Skipped,
			Errors:     run.Errors,
			MarkedSold: run.MarkedSold,
			Status:     run.Status,
			Error:      run.ErrorMessage,
		})
	}

	sold, err := s.store.CountSold("")
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		FeedURL:          s.config.Feed.URL,
		VehiclesBySource: bySource,
		SoldCount:        sold,
		RecentRuns:       recent,
	})
}
