package store

import (
	"testing"
	"time"

	"github.com/lox/hazardmap/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestFetchRuns_HealthAndErrors(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now().UTC()

	runs := []models.FetchRun{
		{StartedAt: now.Add(-3 * time.Minute), FinishedAt: now, Endpoint: "files", HTTPStatus: 200, ResponseSizeBytes: 120, Attempts: 1, Success: true},
		{StartedAt: now.Add(-2 * time.Minute), FinishedAt: now, Endpoint: "statistics", RasterFile: "f1.tif", HTTPStatus: 500, Attempts: 2, ErrorMessage: "statistics: unexpected status 500"},
		{StartedAt: now.Add(-1 * time.Minute), Endpoint: "bounds", RasterFile: "f1.tif", Attempts: 1, ErrorMessage: "bounds: connection refused"},
	}
	for _, r := range runs {
		if err := store.InsertFetchRun(r); err != nil {
			t.Fatalf("InsertFetchRun: %v", err)
		}
	}

	health, err := store.GetFetchHealth(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetFetchHealth: %v", err)
	}
	if len(health) != 3 {
		t.Fatalf("len(health) = %d, want 3", len(health))
	}
	byEndpoint := map[string]FetchHealthSummary{}
	for _, h := range health {
		byEndpoint[h.Endpoint] = h
	}
	if byEndpoint["files"].SuccessRuns != 1 || byEndpoint["files"].TotalBytes != 120 {
		t.Errorf("files summary = %+v", byEndpoint["files"])
	}
	if byEndpoint["statistics"].FailedRuns != 1 {
		t.Errorf("statistics summary = %+v", byEndpoint["statistics"])
	}

	errs, err := store.GetRecentFetchErrors(10)
	if err != nil {
		t.Fatalf("GetRecentFetchErrors: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2", len(errs))
	}
	if errs[0].Endpoint != "bounds" {
		t.Errorf("newest error endpoint = %q, want bounds", errs[0].Endpoint)
	}
	if errs[0].HTTPStatus != 0 || !errs[0].FinishedAt.IsZero() {
		t.Errorf("transport error should have no status or finish time, got %+v", errs[0])
	}
	if errs[1].RasterFile != "f1.tif" || errs[1].Attempts != 2 {
		t.Errorf("statistics error = %+v", errs[1])
	}

	deleted, err := store.CleanupOldFetchRuns(now.Add(-90 * time.Second))
	if err != nil {
		t.Fatalf("CleanupOldFetchRuns: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
}

func TestStatusChecks(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestStatusCheck()
	if err != nil {
		t.Fatalf("GetLatestStatusCheck: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no checks, got %+v", latest)
	}

	base := time.Now().UTC().Add(-time.Hour)
	checks := []models.StatusCheck{
		{CheckedAt: base, Status: models.StatusOnline, LatencyMS: 40},
		{CheckedAt: base.Add(5 * time.Minute), Status: models.StatusOnline, LatencyMS: 35},
		{CheckedAt: base.Add(10 * time.Minute), Status: models.StatusOffline, Error: "connection refused"},
		{CheckedAt: base.Add(15 * time.Minute), Status: models.StatusOnline, LatencyMS: 50},
	}
	for _, c := range checks {
		if err := store.InsertStatusCheck(c); err != nil {
			t.Fatalf("InsertStatusCheck: %v", err)
		}
	}

	latest, err = store.GetLatestStatusCheck()
	if err != nil {
		t.Fatalf("GetLatestStatusCheck: %v", err)
	}
	if latest.Status != models.StatusOnline || latest.LatencyMS != 50 {
		t.Errorf("latest = %+v", latest)
	}

	recent, err := store.GetStatusChecks(2)
	if err != nil {
		t.Fatalf("GetStatusChecks: %v", err)
	}
	if len(recent) != 2 || recent[1].Status != models.StatusOffline || recent[1].Error != "connection refused" {
		t.Errorf("recent = %+v", recent)
	}

	uptime, total, err := store.Uptime(base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Uptime: %v", err)
	}
	if total != 4 || uptime != 0.75 {
		t.Errorf("uptime = %v over %d checks, want 0.75 over 4", uptime, total)
	}
}

func TestPreferences_Upsert(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetPreferences("missing")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}

	p := models.Preferences{
		SessionID: "abc",
		Basemap:   "satellite",
		Opacity:   0.4,
		Country:   "AT",
		UpdatedAt: time.Now(),
	}
	if err := store.UpsertPreferences(p); err != nil {
		t.Fatalf("UpsertPreferences: %v", err)
	}

	p.Basemap = "dark"
	p.Theme = "dark"
	p.SelectedDate = "2024-05-01"
	if err := store.UpsertPreferences(p); err != nil {
		t.Fatalf("UpsertPreferences update: %v", err)
	}

	got, err = store.GetPreferences("abc")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if got.Basemap != "dark" || got.Theme != "dark" || got.SelectedDate != "2024-05-01" {
		t.Errorf("preferences = %+v", got)
	}
	if got.Opacity != 0.4 || got.Country != "AT" {
		t.Errorf("preferences = %+v", got)
	}
}

func TestRawPayloads_Dedup(t *testing.T) {
	store := setupTestStore(t)
	body := []byte(`{"2024-05-01": {"file_name": "f1.tif"}}`)

	id, err := store.StoreRawPayload("files", body)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id for first payload")
	}

	dup, err := store.StoreRawPayload("files", body)
	if err != nil {
		t.Fatalf("StoreRawPayload dup: %v", err)
	}
	if dup != 0 {
		t.Errorf("duplicate id = %d, want 0", dup)
	}

	raw, err := store.GetRawPayload(id)
	if err != nil {
		t.Fatalf("GetRawPayload: %v", err)
	}
	if string(raw) != string(body) {
		t.Errorf("payload = %s, want %s", raw, body)
	}

	if _, err := store.StoreRawPayload("countries", []byte(`[{"label":"Austria","code":"AT"}]`)); err != nil {
		t.Fatalf("StoreRawPayload countries: %v", err)
	}

	meta, latest, err := store.GetLatestRawPayload("files")
	if err != nil {
		t.Fatalf("GetLatestRawPayload: %v", err)
	}
	if meta == nil || meta.ID != id || string(latest) != string(body) {
		t.Errorf("latest = %+v %s", meta, latest)
	}

	stats, err := store.GetRawPayloadStats()
	if err != nil {
		t.Fatalf("GetRawPayloadStats: %v", err)
	}
	if stats.TotalCount != 2 || stats.CountByEndpoint["files"] != 1 || stats.CountByEndpoint["countries"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
