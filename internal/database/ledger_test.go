package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inapppay/internal/models"
)

func openTestDB(t *testing.T) *VerificationRepository {
	t.Helper()
	db, err := Open("", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return NewVerificationRepository(db)
}

func TestOpenCreatesSingularTable(t *testing.T) {
	repo := openTestDB(t)
	assert.True(t, repo.db.Migrator().HasTable("verification_record"))
}

func TestOnOutcomeRecordsEvent(t *testing.T) {
	repo := openTestDB(t)
	finished := time.Now().UTC().Truncate(time.Second)

	repo.OnOutcome(context.Background(), models.OutcomeEvent{
		TransactionID: "tx-1",
		ProductID:     "com.app.pro",
		SessionID:     "session-1",
		Outcome:       models.OutcomeSuccess,
		Environment:   models.EnvironmentSandbox,
		Attempts:      2,
		Receipt:       []byte("receipt"),
		FinishedAt:    finished,
	})
	repo.Flush()

	records, err := repo.ListByTransactionID(context.Background(), "tx-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "success", records[0].Outcome)
	assert.Equal(t, "sandbox", records[0].Environment)
	assert.Equal(t, 2, records[0].Attempts)
	assert.Equal(t, "session-1", records[0].SessionID)
	assert.True(t, finished.Equal(records[0].FinishedAt.UTC()))
}

func TestListByTransactionIDMatchesOriginal(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.Create(ctx, &models.VerificationRecord{TransactionID: "tx-1", Outcome: "success", FinishedAt: base}))
	require.NoError(t, repo.Create(ctx, &models.VerificationRecord{TransactionID: "tx-2", OriginalTransactionID: "tx-1", Outcome: "verification_failed", FinishedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.VerificationRecord{TransactionID: "tx-3", Outcome: "failed", FinishedAt: base}))

	records, err := repo.ListByTransactionID(ctx, "tx-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tx-2", records[0].TransactionID)
	assert.Equal(t, "tx-1", records[1].TransactionID)
}

func TestListRecentAndCounts(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	base := time.Now()
	for i, outcome := range []string{"success", "failed", "success"} {
		require.NoError(t, repo.Create(ctx, &models.VerificationRecord{
			TransactionID: "tx",
			Outcome:       outcome,
			FinishedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "success", records[0].Outcome)
	assert.Equal(t, "failed", records[1].Outcome)

	counts, err := repo.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"success": 2, "failed": 1}, counts)
}
