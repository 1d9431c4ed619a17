package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tixie.local/checkin/internal/db/models"
)

// DefaultListLimit and MaxListLimit bound List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ScanRepository handles database operations for the scan journal.
type ScanRepository struct {
	db *sqlx.DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Record appends one scan outcome.
func (r *ScanRepository) Record(ctx context.Context, rec models.ScanRecord) error {
	rec.ScannedAt = rec.ScannedAt.UTC()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO scan_log (id, station_id, ticket_id, ticket_number, event_id, status, reason, detail, scanned_at)
		VALUES (:id, :station_id, :ticket_id, :ticket_number, :event_id, :status, :reason, :detail, :scanned_at)`,
		rec,
	)
	return err
}

// List returns the most recent scans, newest first.
func (r *ScanRepository) List(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	records := []models.ScanRecord{}
	query := r.db.Rebind(`
		SELECT id, station_id, ticket_id, ticket_number, event_id, status, reason, detail, scanned_at
		FROM scan_log ORDER BY scanned_at DESC, id LIMIT ?`)
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, err
	}
	for i := range records {
		records[i].ScannedAt = records[i].ScannedAt.UTC()
	}
	return records, nil
}

// CountByStatus tallies the journal per status.
func (r *ScanRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	var rows []models.StatusCount
	err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM scan_log GROUP BY status`)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
