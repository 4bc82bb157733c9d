package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload is an archived backend response body.
type RawPayload struct {
	ID                int64
	FetchedAt         time.Time
	Endpoint          string
	PayloadCompressed []byte
	PayloadHash       string
	SchemaVersion     int
}

// StoreRawPayload stores a compressed response body.
// Returns the payload ID, or 0 if the payload was a duplicate (same hash).
func (s *Store) StoreRawPayload(endpoint string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads (fetched_at, endpoint, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), endpoint, buf.Bytes(), hex.EncodeToString(hash[:]))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}
	return decompress(compressed)
}

// GetLatestRawPayload returns the newest archived body for an endpoint, or nil.
func (s *Store) GetLatestRawPayload(endpoint string) (*RawPayload, []byte, error) {
	row := s.db.QueryRow(`
		SELECT id, fetched_at, endpoint, payload_compressed, payload_hash, schema_version
		FROM raw_payloads
		WHERE endpoint = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, endpoint)

	var p RawPayload
	err := row.Scan(&p.ID, &p.FetchedAt, &p.Endpoint, &p.PayloadCompressed, &p.PayloadHash, &p.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	body, err := decompress(p.PayloadCompressed)
	if err != nil {
		return nil, nil, err
	}
	return &p, body, nil
}

// RawPayloadStats contains storage statistics for raw payloads.
type RawPayloadStats struct {
	TotalCount      int
	TotalSizeBytes  int64
	OldestFetchedAt time.Time
	NewestFetchedAt time.Time
	CountByEndpoint map[string]int
}

func (s *Store) GetRawPayloadStats() (*RawPayloadStats, error) {
	stats := &RawPayloadStats{CountByEndpoint: make(map[string]int)}

	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0),
		       MIN(fetched_at), MAX(fetched_at)
		FROM raw_payloads
	`)
	var oldest, newest sql.NullString
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes, &oldest, &newest); err != nil {
		return nil, err
	}
	stats.OldestFetchedAt = parseSQLiteTime(oldest)
	stats.NewestFetchedAt = parseSQLiteTime(newest)

	rows, err := s.db.Query(`SELECT endpoint, COUNT(*) FROM raw_payloads GROUP BY endpoint`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var endpoint string
		var count int
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, err
		}
		stats.CountByEndpoint[endpoint] = count
	}
	return stats, rows.Err()
}

// CleanupOldRawPayloads deletes payloads fetched before cutoff.
func (s *Store) CleanupOldRawPayloads(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func decompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// Aggregates over DATETIME columns come back as text from the sqlite driver.
func parseSQLiteTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
