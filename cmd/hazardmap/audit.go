package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/hazardmap/internal/models"
	"github.com/lox/hazardmap/internal/store"
	"github.com/lox/hazardmap/internal/viewer"
)

type AuditCmd struct {
	Days    int   `default:"7" help:"Days of fetch history to summarise."`
	Errors  int   `default:"10" help:"Number of recent failures to list."`
	Checks  int   `default:"10" help:"Number of recent status checks to list."`
	Payload int64 `help:"Print the archived payload with this ID and exit."`
}

func (c *AuditCmd) Run(rt *runtime) error {
	st, closeStore, err := rt.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	return writeAudit(os.Stdout, st, *c, time.Now())
}

func writeAudit(w io.Writer, st *store.Store, c AuditCmd, now time.Time) error {
	if c.Payload > 0 {
		body, err := st.GetRawPayload(c.Payload)
		if err != nil {
			return fmt.Errorf("payload %d: %w", c.Payload, err)
		}
		_, err = w.Write(body)
		return err
	}

	version, err := st.MigrationVersion()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	fmt.Fprintf(w, "Schema version %d\n", version)

	health, err := st.GetFetchHealth(now.AddDate(0, 0, -c.Days))
	if err != nil {
		return fmt.Errorf("fetch health: %w", err)
	}
	fmt.Fprintf(w, "Backend calls, last %d days\n", c.Days)
	for _, h := range health {
		fmt.Fprintf(w, "  %s  %-12s %4d ok %4d failed  %s\n",
			h.Date, h.Endpoint, h.SuccessRuns, h.FailedRuns, humanize.Bytes(uint64(h.TotalBytes)))
	}

	failures, err := st.GetRecentFetchErrors(c.Errors)
	if err != nil {
		return fmt.Errorf("recent errors: %w", err)
	}
	if len(failures) > 0 {
		fmt.Fprintln(w, "Recent failures")
		for _, f := range failures {
			msg := strings.ReplaceAll(f.ErrorMessage, "\n", " ")
			fmt.Fprintf(w, "  %s  %-12s %s\n", f.StartedAt.Format(time.RFC3339), f.Endpoint, msg)
		}
	}

	if err := writeStatusHistory(w, st, c.Checks); err != nil {
		return err
	}

	archive, err := st.GetRawPayloadStats()
	if err != nil {
		return fmt.Errorf("archive stats: %w", err)
	}
	fmt.Fprintf(w, "Archived payloads: %d (%s compressed)\n", archive.TotalCount, humanize.Bytes(uint64(archive.TotalSizeBytes)))
	endpoints := make([]string, 0, len(archive.CountByEndpoint))
	for endpoint := range archive.CountByEndpoint {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)
	for _, endpoint := range endpoints {
		fmt.Fprintf(w, "  %-12s %d\n", endpoint, archive.CountByEndpoint[endpoint])
	}
	if !archive.NewestFetchedAt.IsZero() {
		fmt.Fprintf(w, "  newest %s\n", humanize.RelTime(archive.NewestFetchedAt, now, "ago", "from now"))
	}
	return writeArchivedRegistry(w, st)
}

func writeStatusHistory(w io.Writer, st *store.Store, limit int) error {
	latest, err := st.GetLatestStatusCheck()
	if err != nil {
		return fmt.Errorf("latest status: %w", err)
	}
	if latest == nil {
		fmt.Fprintln(w, "No status checks recorded")
		return nil
	}
	fmt.Fprintf(w, "Backend %s at %s\n", latest.Status, latest.CheckedAt.UTC().Format(time.RFC3339))

	checks, err := st.GetStatusChecks(limit)
	if err != nil {
		return fmt.Errorf("status checks: %w", err)
	}
	for _, c := range checks {
		line := fmt.Sprintf("  %s  %-8s %5dms", c.CheckedAt.UTC().Format(time.RFC3339), c.Status, c.LatencyMS)
		if c.Error != "" {
			line += "  " + c.Error
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// writeArchivedRegistry summarises the newest archived /files body.
func writeArchivedRegistry(w io.Writer, st *store.Store) error {
	p, body, err := st.GetLatestRawPayload("files")
	if err != nil {
		return fmt.Errorf("latest files payload: %w", err)
	}
	if p == nil {
		return nil
	}
	var files map[string]models.FileInfo
	if err := json.Unmarshal(body, &files); err != nil {
		fmt.Fprintf(w, "Archived registry #%d is not valid JSON: %v\n", p.ID, err)
		return nil
	}
	latest, _ := viewer.NewRegistry(files).Latest()
	fmt.Fprintf(w, "Archived registry #%d: %d dates, latest %s\n", p.ID, len(files), latest)
	return nil
}
