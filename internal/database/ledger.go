package database

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

const defaultListLimit = 50

// VerificationRepository stores one VerificationRecord per finalized
// transaction. It doubles as a coordinator hook.
type VerificationRepository struct {
	db      *gorm.DB
	pending sync.WaitGroup
}

func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create inserts a record
func (r *VerificationRepository) Create(ctx context.Context, record *models.VerificationRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create verification record: %w", err)
	}
	return nil
}

// ListByTransactionID returns records for a transaction or for transactions
// restored from it, newest first
func (r *VerificationRepository) ListByTransactionID(ctx context.Context, transactionID string, limit int) ([]models.VerificationRecord, error) {
	var records []models.VerificationRecord
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? OR original_transaction_id = ?", transactionID, transactionID).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verification records: %w", err)
	}
	return records, nil
}

// ListRecent returns the latest records, newest first
func (r *VerificationRepository) ListRecent(ctx context.Context, limit int) ([]models.VerificationRecord, error) {
	var records []models.VerificationRecord
	err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verification records: %w", err)
	}
	return records, nil
}

// CountByOutcome groups the ledger by outcome
func (r *VerificationRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.VerificationRecord{}).
		Select("outcome, count(*) as count").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count verification records: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

// OnOutcome records the event in the background
func (r *VerificationRepository) OnOutcome(ctx context.Context, event models.OutcomeEvent) {
	record := models.NewVerificationRecord(event)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if err := r.Create(context.WithoutCancel(ctx), record); err != nil {
			logging.Errorf("Failed to record outcome for transaction %s: %v", event.TransactionID, err)
		}
	}()
}

// Flush waits for background writes started by OnOutcome
func (r *VerificationRepository) Flush() {
	r.pending.Wait()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
