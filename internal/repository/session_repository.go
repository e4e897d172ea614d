package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/jengzang/gazemap-backend-go/internal/database"
	"github.com/jengzang/gazemap-backend-go/internal/models"
)

var (
	// ErrNotFound is returned when a session or screenshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrFrozen is returned when samples are appended to a completed session.
	ErrFrozen = errors.New("session is completed")
)

// SessionRepository handles database operations for gaze sessions
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create inserts a session together with any samples it already carries.
func (r *SessionRepository) Create(rec *models.SessionRecord) error {
	now := r.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = models.SessionStatusRecording
	}

	return database.Transaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions
			(id, url, analysis_time, captured_at, page_height, viewport_width, viewport_height, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.URL, rec.AnalysisTime, rec.Timestamp, rec.PageHeight,
			rec.ViewportWidth, rec.ViewportHeight, rec.Status,
			now.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		if err := insertSamples(tx, rec.ID, 0, rec.Samples); err != nil {
			return err
		}
		rec.SampleCount = len(rec.Samples)
		return nil
	})
}

func insertSamples(tx *sql.Tx, sessionID string, firstSeq int, samples []models.GazeSample) error {
	if len(samples) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO gaze_samples (session_id, seq, x, y, ts, scroll_y) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range samples {
		if _, err := stmt.Exec(sessionID, firstSeq+i, s.X, s.Y, s.Timestamp, s.ScrollY); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return nil
}

func lockStatus(tx *sql.Tx, id string) (string, error) {
	var status string
	err := tx.QueryRow(`SELECT status FROM sessions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query session status: %w", err)
	}
	return status, nil
}

// AppendSamples adds samples after the existing ones and returns the new
// sample count. Completed sessions reject appends with ErrFrozen.
func (r *SessionRepository) AppendSamples(id string, samples []models.GazeSample) (int, error) {
	var total int
	err := database.Transaction(r.db, func(tx *sql.Tx) error {
		status, err := lockStatus(tx, id)
		if err != nil {
			return err
		}
		if status == models.SessionStatusCompleted {
			return ErrFrozen
		}

		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM gaze_samples WHERE session_id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to count samples: %w", err)
		}
		if err := insertSamples(tx, id, count, samples); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, r.now().UnixMilli(), id); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		total = count + len(samples)
		return nil
	})
	return total, err
}

// Complete freezes a session. A positive pageHeight replaces the stored one.
func (r *SessionRepository) Complete(id string, pageHeight int) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		status, err := lockStatus(tx, id)
		if err != nil {
			return err
		}
		if status == models.SessionStatusCompleted {
			return ErrFrozen
		}

		query := `UPDATE sessions SET status = ?, updated_at = ?`
		args := []interface{}{models.SessionStatusCompleted, r.now().UnixMilli()}
		if pageHeight > 0 {
			query += `, page_height = ?`
			args = append(args, pageHeight)
		}
		query += ` WHERE id = ?`
		args = append(args, id)

		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}
		return nil
	})
}

const sessionColumns = `s.id, s.url, s.analysis_time, s.captured_at, s.page_height,
	s.viewport_width, s.viewport_height, s.status, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM gaze_samples g WHERE g.session_id = s.id)`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.SessionRecord, error) {
	var (
		rec                  models.SessionRecord
		vw, vh               null.Int
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.URL, &rec.AnalysisTime, &rec.Timestamp, &rec.PageHeight,
		&vw, &vh, &rec.Status, &createdAt, &updatedAt, &rec.SampleCount,
	)
	if err != nil {
		return nil, err
	}
	rec.ViewportWidth = vw
	rec.ViewportHeight = vh
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

// GetByID returns a session with all samples in capture order.
func (r *SessionRepository) GetByID(id string) (*models.SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := r.db.Query(`SELECT x, y, ts, scroll_y FROM gaze_samples WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	rec.Samples = make([]models.GazeSample, 0, rec.SampleCount)
	for rows.Next() {
		var s models.GazeSample
		if err := rows.Scan(&s.X, &s.Y, &s.Timestamp, &s.ScrollY); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		rec.Samples = append(rec.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return rec, nil
}

// List retrieves sessions without samples, newest first
func (r *SessionRepository) List(filter models.SessionFilter) ([]models.SessionRecord, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "s.status = ?")
		args = append(args, filter.Status)
	}
	if filter.URL != "" {
		conditions = append(conditions, "s.url LIKE ?")
		args = append(args, "%"+filter.URL+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sessions s"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	// Add pagination
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	if filter.PageSize > 500 {
		filter.PageSize = 500
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := `SELECT ` + sessionColumns + ` FROM sessions s` + where +
		` ORDER BY s.created_at DESC, s.id LIMIT ? OFFSET ?`
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *rec)
	}
	return sessions, total, rows.Err()
}

// Delete removes a session, its samples and its screenshot.
func (r *SessionRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
