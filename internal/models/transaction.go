package models

import (
	"fmt"
	"time"
)

// TransactionState mirrors the states a payment queue reports
type TransactionState int

const (
	TransactionPurchasing TransactionState = iota
	TransactionPurchased
	TransactionFailed
	TransactionRestored
	TransactionDeferred
)

func (s TransactionState) String() string {
	switch s {
	case TransactionPurchasing:
		return "purchasing"
	case TransactionPurchased:
		return "purchased"
	case TransactionFailed:
		return "failed"
	case TransactionRestored:
		return "restored"
	case TransactionDeferred:
		return "deferred"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transaction is owned by the payment queue; the orchestrator only
// references it until it is finished.
type Transaction struct {
	ID         string           `json:"id"`
	OriginalID string           `json:"original_id,omitempty"` // set on restored transactions
	ProductID  string           `json:"product_id"`
	State      TransactionState `json:"state"`
	Error      *PaymentError    `json:"error,omitempty"`
	Date       time.Time        `json:"date"`
}

// ErrorCode is the platform's purchase error code
type ErrorCode int

const (
	ErrUnknown ErrorCode = iota
	ErrClientInvalid
	ErrPaymentCancelled
	ErrPaymentInvalid
	ErrPaymentNotAllowed
	ErrStoreProductNotAvailable
	ErrCloudServicePermissionDenied
	ErrCloudServiceNetworkConnectionFailed
	ErrCloudServiceRevoked
	ErrPrivacyAcknowledgementRequired
	ErrUnauthorizedRequestData
	ErrInvalidOfferIdentifier
	ErrInvalidSignature
	ErrMissingOfferParams
	ErrInvalidOfferPrice
	ErrOverlayCancelled
	ErrOverlayInvalidConfiguration
	ErrOverlayTimeout
	ErrIneligibleForOffer
	ErrUnsupportedPlatform
	ErrOverlayPresentedInBackgroundScene
)

// PaymentError is attached to failed transactions
type PaymentError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment error %d: %s", int(e.Code), e.Message)
	}
	return fmt.Sprintf("payment error %d", int(e.Code))
}
