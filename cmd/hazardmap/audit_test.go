package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/store"
)

func newAuditStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestWriteAudit(t *testing.T) {
	st := newAuditStore(t)
	now := time.Now().UTC()

	if err := st.InsertFetchRun(models.FetchRun{
		StartedAt: now.Add(-time.Minute), FinishedAt: now, Endpoint: "files",
		HTTPStatus: 502, Attempts: 1, ErrorMessage: "files: unexpected status 502",
	}); err != nil {
		t.Fatal(err)
	}
	for i, status := range []models.BackendStatus{models.StatusOnline, models.StatusOffline} {
		check := models.StatusCheck{CheckedAt: now.Add(time.Duration(i-2) * time.Minute), Status: status, LatencyMS: 40}
		if status == models.StatusOffline {
			check.Error = "connection refused"
		}
		if err := st.InsertStatusCheck(check); err != nil {
			t.Fatal(err)
		}
	}
	registry := `{"2024-05-01":{"file_name":"f1.tif"},"2024-05-02":{"file_name":"f2.tif"}}`
	if _, err := st.StoreRawPayload("files", []byte(registry)); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := writeAudit(&out, st, AuditCmd{Days: 7, Errors: 10, Checks: 10}, now); err != nil {
		t.Fatalf("writeAudit: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Schema version ",
		"files: unexpected status 502",
		"Backend offline at",
		"connection refused",
		"Archived payloads: 1",
		"2 dates, latest 2024-05-02",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("audit output missing %q:\n%s", want, got)
		}
	}
}

func TestWriteAudit_Payload(t *testing.T) {
	st := newAuditStore(t)
	body := `{"2024-05-01":{"file_name":"f1.tif"}}`
	id, err := st.StoreRawPayload("files", []byte(body))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := writeAudit(&out, st, AuditCmd{Payload: id}, time.Now()); err != nil {
		t.Fatalf("writeAudit: %v", err)
	}
	if out.String() != body {
		t.Errorf("payload = %q, want %q", out.String(), body)
	}
}

func TestWriteAudit_EmptyStore(t *testing.T) {
	st := newAuditStore(t)
	var out bytes.Buffer
	if err := writeAudit(&out, st, AuditCmd{Days: 1, Errors: 5, Checks: 5}, time.Now()); err != nil {
		t.Fatalf("writeAudit: %v", err)
	}
	if !strings.Contains(out.String(), "No status checks recorded") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
