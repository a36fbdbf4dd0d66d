package models

import "time"

// OutcomeEvent describes a finalized transaction. Hooks receive one per
// FinishTransaction call.
type OutcomeEvent struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	SessionID             string // empty for unsolicited transactions
	Outcome               Outcome
	Environment           Environment
	Status                int // last verifyReceipt status, -1 when none was read
	Attempts              int
	ServerAuthOnly        bool
	Cached                bool
	Reason                string
	Receipt               []byte
	Payload               []byte
	FinishedAt            time.Time
}
