package repos

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixie.local/checkin/internal/db"
	"tixie.local/checkin/internal/db/models"
)

func newTestRepo(t *testing.T) *ScanRepository {
	t.Helper()
	conn, err := db.NewDB(db.TypeSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewScanRepository(conn)
}

func TestScanRepository_RecordAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, models.ScanRecord{
		ID: "a", StationID: "gate-1", TicketID: "t-1", TicketNumber: "0001", EventID: "e-1",
		Status: "accepted", ScannedAt: base,
	}))
	require.NoError(t, repo.Record(ctx, models.ScanRecord{
		ID: "b", StationID: "gate-1", TicketID: "t-1", EventID: "e-1",
		Status: "rejected", Reason: "already_used", ScannedAt: base.Add(time.Minute),
	}))
	require.NoError(t, repo.Record(ctx, models.ScanRecord{
		ID: "c", StationID: "gate-1", Status: "rejected", Reason: "invalid_qr",
		Detail: "invalid QR code", ScannedAt: base.Add(2 * time.Minute),
	}))

	records, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "a", records[2].ID)
	assert.Equal(t, "0001", records[2].TicketNumber)
	assert.True(t, records[2].ScannedAt.Equal(base))

	records, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "invalid_qr", records[0].Reason)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"accepted": 1, "rejected": 2}, counts)
}

func TestScanRepository_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rec := models.ScanRecord{ID: "a", StationID: "gate-1", Status: "accepted", ScannedAt: time.Now()}

	require.NoError(t, repo.Record(ctx, rec))
	assert.Error(t, repo.Record(ctx, rec))
}

func TestScanRepository_EmptyJournal(t *testing.T) {
	repo := newTestRepo(t)

	records, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestScanRepository_LongIdentifiers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	longID := strings.Repeat("t", 4096)

	require.NoError(t, repo.Record(ctx, models.ScanRecord{
		ID: "long", StationID: strings.Repeat("s", 300), TicketID: longID,
		TicketNumber: strings.Repeat("9", 200), EventID: strings.Repeat("e", 500),
		Status: "rejected", Reason: "invalid_ticket", ScannedAt: time.Now(),
	}))

	records, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, longID, records[0].TicketID)
}
