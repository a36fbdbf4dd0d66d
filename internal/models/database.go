package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// VerificationRecord 校验记录
// One row per finalized transaction
type VerificationRecord struct {
	BaseModel

	TransactionID         string `json:"transaction_id" gorm:"not null;size:100;index"`
	OriginalTransactionID string `json:"original_transaction_id" gorm:"size:100;index"`
	ProductID             string `json:"product_id" gorm:"size:100;index"`
	SessionID             string `json:"session_id" gorm:"size:36"`

	Outcome     string `json:"outcome" gorm:"not null;size:32;index"`
	Environment string `json:"environment" gorm:"size:20"` // sandbox 或 production
	Status      int    `json:"status"`
	Attempts    int    `json:"attempts"`
	ServerAuth  bool   `json:"server_auth"`
	Cached      bool   `json:"cached"`
	Reason      string `json:"reason" gorm:"size:255"`

	FinishedAt time.Time `json:"finished_at" gorm:"index"`
}

// NewVerificationRecord converts a hook event into a row
func NewVerificationRecord(ev OutcomeEvent) *VerificationRecord {
	return &VerificationRecord{
		TransactionID:         ev.TransactionID,
		OriginalTransactionID: ev.OriginalTransactionID,
		ProductID:             ev.ProductID,
		SessionID:             ev.SessionID,
		Outcome:               ev.Outcome.String(),
		Environment:           ev.Environment.String(),
		Status:                ev.Status,
		Attempts:              ev.Attempts,
		ServerAuth:            ev.ServerAuthOnly,
		Cached:                ev.Cached,
		Reason:                ev.Reason,
		FinishedAt:            ev.FinishedAt,
	}
}
