package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jengzang/gazemap-backend-go/internal/models"
)

// ScreenshotRepository stores one background image per session
type ScreenshotRepository struct {
	db *sql.DB
}

// NewScreenshotRepository creates a new screenshot repository
func NewScreenshotRepository(db *sql.DB) *ScreenshotRepository {
	return &ScreenshotRepository{db: db}
}

// Save inserts or replaces the screenshot of a session.
func (r *ScreenshotRepository) Save(s *models.Screenshot) error {
	_, err := r.db.Exec(`INSERT INTO screenshots
		(session_id, mime_type, width, height, document_height, data, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			mime_type = excluded.mime_type,
			width = excluded.width,
			height = excluded.height,
			document_height = excluded.document_height,
			data = excluded.data,
			captured_at = excluded.captured_at`,
		s.SessionID, s.MIMEType, s.Width, s.Height, s.DocumentHeight, s.Data, s.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// Get returns the screenshot of a session or ErrNotFound.
func (r *ScreenshotRepository) Get(sessionID string) (*models.Screenshot, error) {
	var s models.Screenshot
	err := r.db.QueryRow(`SELECT session_id, mime_type, width, height, document_height, data, captured_at
		FROM screenshots WHERE session_id = ?`, sessionID).
		Scan(&s.SessionID, &s.MIMEType, &s.Width, &s.Height, &s.DocumentHeight, &s.Data, &s.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screenshot: %w", err)
	}
	return &s, nil
}
