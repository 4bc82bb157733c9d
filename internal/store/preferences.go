package store

import (
	"database/sql"

	"github.com/lox/hazardmap/internal/models"
)

// GetPreferences returns saved preferences for a session, or nil if none exist.
func (s *Store) GetPreferences(sessionID string) (*models.Preferences, error) {
	row := s.db.QueryRow(`
		SELECT session_id, basemap, opacity, country, theme, selected_date, updated_at
		FROM preferences
		WHERE session_id = ?
	`, sessionID)

	var (
		p                      models.Preferences
		country, theme, picked sql.NullString
	)
	err := row.Scan(&p.SessionID, &p.Basemap, &p.Opacity, &country, &theme, &picked, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Country = country.String
	p.Theme = theme.String
	p.SelectedDate = picked.String
	return &p, nil
}

func (s *Store) UpsertPreferences(p models.Preferences) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (session_id, basemap, opacity, country, theme, selected_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			basemap = excluded.basemap,
			opacity = excluded.opacity,
			country = excluded.country,
			theme = excluded.theme,
			selected_date = excluded.selected_date,
			updated_at = excluded.updated_at
	`, p.SessionID, p.Basemap, p.Opacity, nullString(p.Country), nullString(p.Theme), nullString(p.SelectedDate), p.UpdatedAt.UTC())
	return err
}
