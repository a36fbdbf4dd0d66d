package queue

import (
	"context"

	"inapppay/internal/models"
)

// Payment is a request to buy one product
type Payment struct {
	ProductID string
	Quantity  int
}

// Observer receives payment queue events. Calls may arrive on any goroutine.
type Observer interface {
	UpdatedTransactions(transactions []*models.Transaction)
	RestoreCompletedTransactionsFinished()
	RestoreCompletedTransactionsFailed(err error)
}

// PaymentQueue is the platform purchase queue
type PaymentQueue interface {
	Observe(observer Observer)
	AddPayment(payment Payment) error
	RestoreCompletedTransactions()
	FinishTransaction(transaction *models.Transaction)
	CanMakePayments() bool
}

// ReceiptStore reads the receipt of the running install
type ReceiptStore interface {
	ReadReceipt() ([]byte, error)
}

// CatalogService resolves product identifiers to descriptors
type CatalogService interface {
	RequestProducts(ctx context.Context, ids []string) ([]models.ProductDescriptor, error)
}
