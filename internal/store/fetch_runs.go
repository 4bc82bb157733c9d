package store

import (
	"database/sql"
	"time"

	"github.com/lox/hazardmap/internal/models"
)

// InsertFetchRun records one finished backend call.
func (s *Store) InsertFetchRun(run models.FetchRun) error {
	_, err := s.db.Exec(`
		INSERT INTO fetch_runs (started_at, finished_at, endpoint, raster_file, http_status, response_size_bytes, attempts, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), nullTime(run.FinishedAt), run.Endpoint, nullString(run.RasterFile),
		nullInt(run.HTTPStatus), run.ResponseSizeBytes, run.Attempts, run.Success, nullString(run.ErrorMessage))
	return err
}

// FetchHealthSummary aggregates fetch runs per day and endpoint.
type FetchHealthSummary struct {
	Date        string
	Endpoint    string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
	TotalBytes  int64
}

// GetFetchHealth returns summaries for runs started after since.
func (s *Store) GetFetchHealth(since time.Time) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			endpoint,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(response_size_bytes), 0) as total_bytes
		FROM fetch_runs
		WHERE started_at >= ?
		GROUP BY date, endpoint
		ORDER BY date DESC, endpoint
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Endpoint, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.TotalBytes); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentFetchErrors returns the latest failed runs, newest first.
func (s *Store) GetRecentFetchErrors(limit int) ([]models.FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, endpoint, raster_file, http_status,
		       response_size_bytes, attempts, success, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.FetchRun
	for rows.Next() {
		var (
			r          models.FetchRun
			finished   sql.NullTime
			rasterFile sql.NullString
			status     sql.NullInt64
			size       sql.NullInt64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Endpoint, &rasterFile, &status,
			&size, &r.Attempts, &r.Success, &errMsg); err != nil {
			return nil, err
		}
		r.FinishedAt = finished.Time
		r.RasterFile = rasterFile.String
		r.HTTPStatus = int(status.Int64)
		r.ResponseSizeBytes = int(size.Int64)
		r.ErrorMessage = errMsg.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// CleanupOldFetchRuns deletes runs started before cutoff.
func (s *Store) CleanupOldFetchRuns(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM fetch_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
