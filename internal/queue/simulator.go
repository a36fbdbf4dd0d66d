package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"inapppay/internal/dispatch"
	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

var ErrPaymentsDisabled = errors.New("payments are disabled on this device")

// Simulator is an in-memory PaymentQueue. Events are delivered to observers
// in order on the simulator's own goroutine, like a platform queue does.
type Simulator struct {
	mu         sync.Mutex
	events     *dispatch.Dispatcher
	observers  []Observer
	canPay     bool
	seq        int
	pending    map[string]*models.Transaction
	history    []*models.Transaction
	failures   map[string]*models.PaymentError
	deferred   map[string]bool
	restoreErr error
	finished   []string
}

// NewSimulator creates a queue that allows payments
func NewSimulator() *Simulator {
	return &Simulator{
		events:   dispatch.New(),
		canPay:   true,
		pending:  make(map[string]*models.Transaction),
		failures: make(map[string]*models.PaymentError),
		deferred: make(map[string]bool),
	}
}

// Close stops event delivery
func (s *Simulator) Close() {
	s.events.Close()
}

// Flush waits until every queued event has been handed to observers
func (s *Simulator) Flush() {
	s.events.Sync()
}

// SetCanMakePayments toggles the device payment capability
func (s *Simulator) SetCanMakePayments(allowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canPay = allowed
}

// FailProduct makes payments for productID fail with perr
func (s *Simulator) FailProduct(productID string, perr *models.PaymentError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perr == nil {
		delete(s.failures, productID)
		return
	}
	s.failures[productID] = perr
}

// DeferProduct makes payments for productID stop at Deferred, as when a
// purchase waits for approval. The transaction stays pending; replay its
// final state with Emit.
func (s *Simulator) DeferProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred[productID] = true
}

// FailRestore makes restores report err. nil clears it.
func (s *Simulator) FailRestore(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreErr = err
}

// AddPurchased seeds the purchase history used by restores
func (s *Simulator) AddPurchased(productID string) *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.newTransactionLocked(productID, models.TransactionPurchased)
	s.history = append(s.history, tx)
	return snapshot(tx)
}

// Emit queues transactions as pending and delivers them to observers.
// Tests use it to replay events the simulator would not produce itself.
func (s *Simulator) Emit(transactions ...*models.Transaction) {
	s.mu.Lock()
	batch := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.ID == "" {
			s.seq++
			tx.ID = fmt.Sprintf("sim-%d", s.seq)
		}
		s.pending[tx.ID] = tx
		batch = append(batch, snapshot(tx))
	}
	s.mu.Unlock()
	s.publish(batch)
}

// Finished lists finished transaction IDs in call order, duplicates included
func (s *Simulator) Finished() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.finished))
	copy(out, s.finished)
	return out
}

// Pending lists transactions that were never finished
func (s *Simulator) Pending() []*models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Transaction, 0, len(s.pending))
	for _, tx := range s.pending {
		out = append(out, snapshot(tx))
	}
	return out
}

func (s *Simulator) Observe(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *Simulator) CanMakePayments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canPay
}

func (s *Simulator) AddPayment(payment Payment) error {
	s.mu.Lock()
	if !s.canPay {
		s.mu.Unlock()
		return ErrPaymentsDisabled
	}
	tx := s.newTransactionLocked(payment.ProductID, models.TransactionPurchasing)
	s.pending[tx.ID] = tx
	purchasing := snapshot(tx)

	if s.deferred[payment.ProductID] {
		tx.State = models.TransactionDeferred
	} else if perr, ok := s.failures[payment.ProductID]; ok {
		tx.State = models.TransactionFailed
		tx.Error = perr
	} else {
		tx.State = models.TransactionPurchased
		s.history = append(s.history, snapshot(tx))
	}
	final := snapshot(tx)
	s.mu.Unlock()

	logging.Debugf("simulator: payment %s queued for %s", tx.ID, payment.ProductID)
	s.publish([]*models.Transaction{purchasing})
	s.publish([]*models.Transaction{final})
	return nil
}

func (s *Simulator) RestoreCompletedTransactions() {
	s.mu.Lock()
	if err := s.restoreErr; err != nil {
		s.mu.Unlock()
		s.each(func(o Observer) { o.RestoreCompletedTransactionsFailed(err) })
		return
	}
	batch := make([]*models.Transaction, 0, len(s.history))
	for _, original := range s.history {
		tx := s.newTransactionLocked(original.ProductID, models.TransactionRestored)
		tx.OriginalID = original.ID
		s.pending[tx.ID] = tx
		batch = append(batch, snapshot(tx))
	}
	s.mu.Unlock()

	if len(batch) > 0 {
		s.publish(batch)
	}
	s.each(func(o Observer) { o.RestoreCompletedTransactionsFinished() })
}

func (s *Simulator) FinishTransaction(transaction *models.Transaction) {
	if transaction == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[transaction.ID]; !ok {
		logging.Warnf("simulator: finishing unknown or already finished transaction %s", transaction.ID)
	}
	delete(s.pending, transaction.ID)
	s.finished = append(s.finished, transaction.ID)
}

func (s *Simulator) newTransactionLocked(productID string, state models.TransactionState) *models.Transaction {
	s.seq++
	return &models.Transaction{
		ID:        fmt.Sprintf("sim-%d", s.seq),
		ProductID: productID,
		State:     state,
		Date:      time.Now(),
	}
}

func (s *Simulator) publish(batch []*models.Transaction) {
	s.each(func(o Observer) { o.UpdatedTransactions(batch) })
}

func (s *Simulator) each(fn func(Observer)) {
	s.events.Submit(func() {
		s.mu.Lock()
		observers := make([]Observer, len(s.observers))
		copy(observers, s.observers)
		s.mu.Unlock()
		for _, o := range observers {
			fn(o)
		}
	})
}

func snapshot(tx *models.Transaction) *models.Transaction {
	c := *tx
	return &c
}
