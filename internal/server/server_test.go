package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dealerworks/lotsync/internal/config"
	"github.com/dealerworks/lotsync/internal/engine"
	"github.com/dealerworks/lotsync/internal/feed"
	"github.com/dealerworks/lotsync/internal/store"
)

const testAdminToken = "test-token"

// testFeed is a minimal two-ad feed document
const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<standard>
	<ad>
		<id>SKU-001</id>
		<title><![CDATA[Seat Ibiza 1.0 TSI]]></title>
		<vin>VIN-001</vin>
		<price>12999,50</price>
	</ad>
	<ad>
		<id>SKU-002</id>
		<title>VW Golf 1.5 TSI</title>
		<vin>VIN-002</vin>
		<price>18500</price>
	</ad>
</standard>`

// setupTestServer wires a server against an in-memory store and a stub
// feed endpoint serving the given XML document.
func setupTestServer(t *testing.T, feedXML string) (*Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.New(":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	})

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if feedXML == "" {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, feedXML)
	}))
	t.Cleanup(upstream.Close)

	cfg := config.DefaultConfig()
	cfg.Feed.URL = upstream.URL
	cfg.Admin.Token = testAdminToken

	eng := engine.New(st, feed.NewClient(upstream.URL, logger), 0, logger)
	return NewServer(eng, st, cfg, logger), st
}

// doRequest sends a request through the full route table, so routing, path
// values and the auth middleware are all exercised.
func doRequest(srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.setupRoutes().ServeHTTP(w, req)
	return w
}

// seedVehicle inserts a vehicle directly through the store
func seedVehicle(t *testing.T, st *store.Store, v *store.Vehicle, imageURLs []string) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx *store.Tx) error {
		if _, err := tx.UpsertVehicle(v); err != nil {
			return err
		}
		return tx.CreateImages(v.ID, imageURLs, store.SourceFeed)
	})
	if err != nil {
		t.Fatalf("failed to seed vehicle: %v", err)
	}
}

func feedVehicle(sku, vin string) *store.Vehicle {
	return &store.Vehicle{
		SKU:          sku,
		Name:         "Seat Ibiza " + sku,
		VIN:          vin,
		RegularPrice: 12000,
		Source:       store.SourceFeed,
	}
}

// ============================================================================
// Sync Endpoint Tests
// ============================================================================

func TestHandleSyncContract(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/sync", `{"offset":0,"limit":50,"cleanupMode":true}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp syncResponseBody
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.CreatedCount != 2 || resp.UpdatedCount != 0 {
		t.Errorf("expected 2 created / 0 updated, got %d / %d", resp.CreatedCount, resp.UpdatedCount)
	}
	if resp.Total != 2 || !resp.Done || resp.NextOffset != 2 {
		t.Errorf("expected total=2 done nextOffset=2, got %+v", resp)
	}
	if resp.SyncSession == "" {
		t.Error("expected a sync session id in the response")
	}
	if resp.Message == "" {
		t.Error("expected a summary message")
	}
	if resp.BatchDetails.StartIndex != 0 || resp.BatchDetails.EndIndex != 2 || resp.BatchDetails.TotalInBatch != 2 {
		t.Errorf("unexpected batch details: %+v", resp.BatchDetails)
	}
	if resp.Results.Successful == nil || resp.Results.Skipped == nil || resp.Results.Errors == nil {
		t.Error("expected item lists to be present, not null")
	}
	if len(resp.Results.Successful) != 2 {
		t.Errorf("expected 2 successful items, got %d", len(resp.Results.Successful))
	}
}

func TestHandleSyncEmptyBodyUsesDefaults(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/sync", "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleSyncValidation(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	tests := []struct {
		name string
		body string
	}{
		{"negative offset", `{"offset":-1}`},
		{"zero limit", `{"limit":0,"offset":0}`},
		{"limit too large", `{"limit":101}`},
		{"malformed JSON", `{"offset":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, "POST", "/api/sync", tt.body, testAdminToken)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHandleSyncFatalFeedError(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := doRequest(srv, "POST", "/api/sync", `{"offset":0,"limit":50}`, testAdminToken)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected an error field in the response")
	}
}

// ============================================================================
// Auth Middleware Tests
// ============================================================================

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/sync", `{}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	w = doRequest(srv, "POST", "/api/sync", `{}`, "wrong-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: expected 401, got %d", w.Code)
	}
}

func TestAdminRoutesDisabledWithoutConfiguredToken(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)
	srv.config.Admin.Token = ""

	w := doRequest(srv, "POST", "/api/sync", `{}`, testAdminToken)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no configured token, got %d", w.Code)
	}
}

func TestReadRoutesNeedNoToken(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "GET", "/api/vehicles", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// ============================================================================
// Vehicle Endpoint Tests
// ============================================================================

func TestHandleListVehicles(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	seedVehicle(t, st, feedVehicle("SKU-A", "VIN-A"), nil)

	sold := feedVehicle("SKU-B", "VIN-B")
	sold.IsSold = true
	seedVehicle(t, st, sold, nil)

	w := doRequest(srv, "GET", "/api/vehicles", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var vehicles []vehicleJSON
	if err := json.NewDecoder(w.Body).Decode(&vehicles); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(vehicles) != 1 {
		t.Errorf("expected sold vehicle excluded by default, got %d vehicles", len(vehicles))
	}

	w = doRequest(srv, "GET", "/api/vehicles?include_sold=true", "", "")
	if err := json.NewDecoder(w.Body).Decode(&vehicles); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(vehicles) != 2 {
		t.Errorf("expected 2 vehicles with include_sold, got %d", len(vehicles))
	}
}

func TestHandleGetVehicle(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	v := feedVehicle("SKU-A", "VIN-A")
	seedVehicle(t, st, v, []string{"https://cdn.example.com/a.jpg"})

	w := doRequest(srv, "GET", fmt.Sprintf("/api/vehicles/%d", v.ID), "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got vehicleJSON
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.SKU != "SKU-A" {
		t.Errorf("expected SKU-A, got %q", got.SKU)
	}
	if len(got.Images) != 1 {
		t.Errorf("expected 1 image attached, got %d", len(got.Images))
	}

	w = doRequest(srv, "GET", "/api/vehicles/9999", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown vehicle, got %d", w.Code)
	}

	w = doRequest(srv, "GET", "/api/vehicles/notanumber", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", w.Code)
	}
}

func TestHandleSearchVehicles(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	seedVehicle(t, st, feedVehicle("SKU-A", "VIN-A"), nil)

	w := doRequest(srv, "GET", "/api/vehicles/search?term=ibiza", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var vehicles []vehicleJSON
	if err := json.NewDecoder(w.Body).Decode(&vehicles); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(vehicles) != 1 {
		t.Errorf("expected 1 match, got %d", len(vehicles))
	}

	w = doRequest(srv, "GET", "/api/vehicles/search", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a term, got %d", w.Code)
	}
}

func TestHandleSoldVehicles(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	sold := feedVehicle("SKU-A", "VIN-A")
	sold.IsSold = true
	seedVehicle(t, st, sold, nil)

	w := doRequest(srv, "POST", "/api/vehicles/sold", `{"action":"count"}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var countResp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&countResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if countResp["soldCount"].(float64) != 1 {
		t.Errorf("expected soldCount 1, got %v", countResp["soldCount"])
	}

	w = doRequest(srv, "POST", "/api/vehicles/sold", `{"action":"purge"}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	count, err := st.CountSold(store.SourceFeed)
	if err != nil {
		t.Fatalf("CountSold() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected sold vehicles purged, %d remain", count)
	}

	w = doRequest(srv, "POST", "/api/vehicles/sold", `{"action":"explode"}`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", w.Code)
	}
}

func TestHandleSourceBackfill(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/vehicles/source-backfill", "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// ============================================================================
// Image Endpoint Tests
// ============================================================================

func TestHandleImageEndpoints(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	v := feedVehicle("SKU-A", "VIN-A")
	seedVehicle(t, st, v, []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"})

	images, err := st.ListImages(v.ID)
	if err != nil {
		t.Fatalf("ListImages() failed: %v", err)
	}

	w := doRequest(srv, "POST", fmt.Sprintf("/api/images/%d/primary", images[0].ID), "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("set primary: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "DELETE", fmt.Sprintf("/api/images/%d", images[1].ID), "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "DELETE", "/api/images/9999", "", testAdminToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown image, got %d", w.Code)
	}

	w = doRequest(srv, "POST", "/api/images/9999/primary", "", testAdminToken)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown image, got %d", w.Code)
	}
}

// ============================================================================
// Offer Endpoint Tests
// ============================================================================

func TestHandleOfferLifecycle(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	v := feedVehicle("SKU-A", "VIN-A")
	seedVehicle(t, st, v, nil)

	// Create
	w := doRequest(srv, "POST", "/api/offers", `{"slug":"summer","title":"Summer Sale","active":true}`, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var offer offerJSON
	if err := json.NewDecoder(w.Body).Decode(&offer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if offer.ID == 0 || offer.Slug != "summer" {
		t.Errorf("unexpected created offer: %+v", offer)
	}

	// Duplicate slug
	w = doRequest(srv, "POST", "/api/offers", `{"slug":"summer","title":"Again"}`, testAdminToken)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", w.Code)
	}

	// Attach vehicles
	body := fmt.Sprintf(`{"vehicleIds":[%d]}`, v.ID)
	w = doRequest(srv, "PUT", fmt.Sprintf("/api/offers/%d/vehicles", offer.ID), body, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("set vehicles: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(&offer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(offer.VehicleIDs) != 1 || offer.VehicleIDs[0] != v.ID {
		t.Errorf("expected offer to carry the vehicle, got %v", offer.VehicleIDs)
	}

	// Lookup by slug
	w = doRequest(srv, "GET", "/api/offers/summer", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get by slug: expected 200, got %d", w.Code)
	}

	// Latest
	w = doRequest(srv, "GET", "/api/offers/latest", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", w.Code)
	}

	// Update
	w = doRequest(srv, "PUT", fmt.Sprintf("/api/offers/%d", offer.ID), `{"title":"Late Summer Sale","active":false}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// No active offer remains
	w = doRequest(srv, "GET", "/api/offers/latest", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("latest after deactivation: expected 404, got %d", w.Code)
	}

	// Delete
	w = doRequest(srv, "DELETE", fmt.Sprintf("/api/offers/%d", offer.ID), "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = doRequest(srv, "GET", fmt.Sprintf("/api/offers/%d", offer.ID), "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestHandleUpdateOfferOmittedFieldsKept(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/offers", `{"slug":"winter","title":"Winter Sale","description":"Snow tires included","active":true}`, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var offer offerJSON
	if err := json.NewDecoder(w.Body).Decode(&offer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// A body naming only the title must leave the other fields untouched.
	w = doRequest(srv, "PUT", fmt.Sprintf("/api/offers/%d", offer.ID), `{"title":"Deep Winter Sale"}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(&offer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if offer.Title != "Deep Winter Sale" {
		t.Errorf("expected updated title, got %q", offer.Title)
	}
	if !offer.Active {
		t.Error("expected offer to stay active when the body omits active")
	}
	if offer.Description != "Snow tires included" {
		t.Errorf("expected description to survive, got %q", offer.Description)
	}

	// An explicit false still deactivates.
	w = doRequest(srv, "PUT", fmt.Sprintf("/api/offers/%d", offer.ID), `{"active":false}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(&offer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if offer.Active {
		t.Error("expected offer to deactivate on explicit active:false")
	}
}

func TestHandleDeleteOfferBySlug(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/offers", `{"slug":"clearance","title":"Clearance"}`, testAdminToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "DELETE", "/api/offers/clearance", "", testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("delete by slug: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "GET", "/api/offers/clearance", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestHandleCreateOfferValidation(t *testing.T) {
	srv, _ := setupTestServer(t, testFeed)

	w := doRequest(srv, "POST", "/api/offers", `{"title":"No Slug"}`, testAdminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without slug, got %d", w.Code)
	}
}

// ============================================================================
// Status Endpoint Tests
// ============================================================================

func TestHandleStatus(t *testing.T) {
	srv, st := setupTestServer(t, testFeed)
	seedVehicle(t, st, feedVehicle("SKU-A", "VIN-A"), nil)

	// One completed sync gives the status a recent run to report
	w := doRequest(srv, "POST", "/api/sync", `{"offset":0,"limit":50}`, testAdminToken)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d", w.Code)
	}

	w = doRequest(srv, "GET", "/api/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status statusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.VehiclesBySource[store.SourceFeed] != 3 {
		t.Errorf("expected 3 feed vehicles, got %d", status.VehiclesBySource[store.SourceFeed])
	}
	if len(status.RecentRuns) != 1 {
		t.Errorf("expected 1 recent run, got %d", len(status.RecentRuns))
	}
	if status.FeedURL == "" {
		t.Error("expected the feed URL in the status")
	}
}
