package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/csvpilot/csvpilot/internal/domain"
)

// HistoryRepository persists the run-history audit log
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record inserts one run record
func (r *HistoryRepository) Record(record *domain.RunRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO run_history (id, session_id, file_id, run_id, status, insight, artifact_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.SessionID, record.FileID, record.RunID,
		record.Status, record.Insight, record.ArtifactCount, record.CreatedAt)

	return err
}

// ListBySession retrieves a session's run records, newest first
func (r *HistoryRepository) ListBySession(sessionID string) ([]*domain.RunRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, file_id, run_id, status, insight, artifact_count, created_at
		FROM run_history WHERE session_id = ?
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*domain.RunRecord{}
	for rows.Next() {
		record := &domain.RunRecord{}
		var runID, insight sql.NullString

		if err := rows.Scan(&record.ID, &record.SessionID, &record.FileID, &runID,
			&record.Status, &insight, &record.ArtifactCount, &record.CreatedAt); err != nil {
			return nil, err
		}

		if runID.Valid {
			record.RunID = runID.String
		}
		if insight.Valid {
			record.Insight = insight.String
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Count returns the total number of recorded runs
func (r *HistoryRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM run_history`).Scan(&count)
	return count, err
}
