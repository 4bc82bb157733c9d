package store

import (
	"database/sql"
	"time"

	"github.com/lox/hazardmap/internal/models"
)

func (s *Store) InsertStatusCheck(c models.StatusCheck) error {
	_, err := s.db.Exec(`
		INSERT INTO status_checks (checked_at, status, latency_ms, error)
		VALUES (?, ?, ?, ?)
	`, c.CheckedAt.UTC(), string(c.Status), c.LatencyMS, nullString(c.Error))
	return err
}

// GetLatestStatusCheck returns the most recent check, or nil when none exist.
func (s *Store) GetLatestStatusCheck() (*models.StatusCheck, error) {
	checks, err := s.GetStatusChecks(1)
	if err != nil || len(checks) == 0 {
		return nil, err
	}
	return &checks[0], nil
}

// GetStatusChecks returns up to limit checks, newest first.
func (s *Store) GetStatusChecks(limit int) ([]models.StatusCheck, error) {
	rows, err := s.db.Query(`
		SELECT id, checked_at, status, latency_ms, error
		FROM status_checks
		ORDER BY checked_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []models.StatusCheck
	for rows.Next() {
		var (
			c       models.StatusCheck
			status  string
			latency sql.NullInt64
			errMsg  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CheckedAt, &status, &latency, &errMsg); err != nil {
			return nil, err
		}
		c.Status = models.BackendStatus(status)
		c.LatencyMS = latency.Int64
		c.Error = errMsg.String
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// Uptime returns the fraction of checks since the given time that were online.
func (s *Store) Uptime(since time.Time) (float64, int, error) {
	var total, online int
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM status_checks
		WHERE checked_at >= ?
	`, string(models.StatusOnline), since.UTC()).Scan(&total, &online)
	if err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(online) / float64(total), total, nil
}
