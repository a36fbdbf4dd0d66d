package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inapppay/internal/dispatch"
	"inapppay/internal/models"
	"inapppay/internal/queue"
	"inapppay/internal/session"
	"inapppay/internal/verification"
	"inapppay/pkg/logging"
)

var (
	ErrNothingToRestore = errors.New("no transactions were restored")
	ErrNoProduct        = errors.New("transaction has no product identifier")
	ErrDeferred         = errors.New("purchase is awaiting approval")
	ErrShuttingDown     = errors.New("coordinator is shutting down")
)

// RestoreMode selects which restored transactions get verified
type RestoreMode string

const (
	// RestoreLatest verifies only the most recently restored transaction and
	// leaves the others queued.
	RestoreLatest RestoreMode = "latest"
	// RestoreEach verifies and finishes every restored transaction.
	RestoreEach RestoreMode = "each"
)

// Verifier checks a receipt
type Verifier interface {
	Verify(ctx context.Context, req verification.Request) verification.Result
}

// Hook observes every finalized transaction. Hooks run on the dispatcher
// and must hand slow work off to their own goroutines.
type Hook interface {
	OnOutcome(ctx context.Context, event models.OutcomeEvent)
}

// HookFunc adapts a function to Hook
type HookFunc func(ctx context.Context, event models.OutcomeEvent)

func (f HookFunc) OnOutcome(ctx context.Context, event models.OutcomeEvent) {
	f(ctx, event)
}

type Options struct {
	Queue      queue.PaymentQueue
	Receipts   queue.ReceiptStore
	Verifier   Verifier
	Dispatcher *dispatch.Dispatcher
	Sessions   *session.Manager

	// Defaults apply to transactions no session owns
	Defaults    session.Settings
	RestoreMode RestoreMode
	Hooks       []Hook
}

// Coordinator reacts to payment queue events and decides when transactions
// are verified and finished. Apart from the Observer methods, everything
// runs on the dispatcher.
type Coordinator struct {
	queue       queue.PaymentQueue
	receipts    queue.ReceiptStore
	verifier    Verifier
	dispatcher  *dispatch.Dispatcher
	sessions    *session.Manager
	defaults    session.Settings
	restoreMode RestoreMode
	hooks       []Hook

	restoring bool
	restored  []*models.Transaction
	inFlight  map[string]struct{}

	// workers is only added to on the dispatcher, and never once closing
	// is set
	workers sync.WaitGroup
	closing bool
}

// verdict is a verification result plus what the hooks need to know
type verdict struct {
	verification.Result
	receipt []byte
	reason  string
}

func New(opts Options) *Coordinator {
	mode := opts.RestoreMode
	if mode == "" {
		mode = RestoreLatest
	}
	return &Coordinator{
		queue:       opts.Queue,
		receipts:    opts.Receipts,
		verifier:    opts.Verifier,
		dispatcher:  opts.Dispatcher,
		sessions:    opts.Sessions,
		defaults:    opts.Defaults,
		restoreMode: mode,
		hooks:       opts.Hooks,
		inFlight:    make(map[string]struct{}),
	}
}

// UpdatedTransactions implements queue.Observer
func (c *Coordinator) UpdatedTransactions(transactions []*models.Transaction) {
	c.dispatcher.Submit(func() {
		for _, tx := range transactions {
			c.handle(tx)
		}
	})
}

// RestoreCompletedTransactionsFinished implements queue.Observer
func (c *Coordinator) RestoreCompletedTransactionsFinished() {
	c.dispatcher.Submit(c.restoreFinished)
}

// RestoreCompletedTransactionsFailed implements queue.Observer
func (c *Coordinator) RestoreCompletedTransactionsFailed(err error) {
	c.dispatcher.Submit(func() { c.restoreFailed(err) })
}

// Shutdown stops new verifications and blocks until running ones have
// handed their results to the dispatcher. Call before closing the
// dispatcher, never from a task.
func (c *Coordinator) Shutdown() {
	stopped := make(chan struct{})
	if !c.dispatcher.Submit(func() {
		c.closing = true
		close(stopped)
	}) {
		return
	}
	<-stopped
	c.workers.Wait()
}

// BeginRestore clears restore bookkeeping before a new restore starts
func (c *Coordinator) BeginRestore() {
	c.restoring = false
	c.restored = nil
}

func (c *Coordinator) handle(tx *models.Transaction) {
	switch tx.State {
	case models.TransactionPurchasing:
		logging.Debugf("Transaction %s for %s is purchasing", tx.ID, tx.ProductID)
		c.owner(tx)
	case models.TransactionDeferred:
		c.deferred(tx)
	case models.TransactionPurchased:
		c.purchased(tx)
	case models.TransactionFailed:
		c.failed(tx)
	case models.TransactionRestored:
		c.restoring = true
		c.restored = append(c.restored, tx)
	default:
		logging.Warnf("Transaction %s has unhandled state %s", tx.ID, tx.State)
	}
}

func (c *Coordinator) purchased(tx *models.Transaction) {
	owner := c.owner(tx)
	if tx.ProductID == "" {
		logging.Errorf("Transaction %s purchased without product identifier", tx.ID)
		c.conclude(tx, owner, verdict{
			Result: c.terminal(models.OutcomeFailed, c.settingsFor(owner), ErrNoProduct),
		})
		return
	}
	c.verify(tx, owner)
}

// deferred releases the owning session. The transaction stays queued and
// its eventual Purchased or Failed event is handled as unsolicited.
func (c *Coordinator) deferred(tx *models.Transaction) {
	logging.Infof("Transaction %s for %s is deferred", tx.ID, tx.ProductID)
	owner := c.owner(tx)
	if owner == nil {
		return
	}
	c.sessions.Complete(owner, session.Result{
		Outcome:       models.OutcomeFailed,
		TransactionID: tx.ID,
		Environment:   owner.Settings.Environment,
		Err:           ErrDeferred,
	})
}

func (c *Coordinator) failed(tx *models.Transaction) {
	if _, busy := c.inFlight[tx.ID]; busy {
		logging.Warnf("Ignoring failure event for transaction %s already being verified", tx.ID)
		return
	}
	category, description := ClassifyFailure(tx.Error)
	logging.Warnf("Transaction %s for %s failed [%s]: %s", tx.ID, tx.ProductID, category, description)

	var err error
	if tx.Error != nil {
		err = tx.Error
	}
	owner := c.owner(tx)
	c.conclude(tx, owner, verdict{
		Result: c.terminal(models.OutcomeFailed, c.settingsFor(owner), err),
		reason: string(category),
	})
}

// verify reads the receipt and verifies it on a worker goroutine, then
// concludes on the dispatcher
func (c *Coordinator) verify(tx *models.Transaction, owner *session.Session) {
	if _, busy := c.inFlight[tx.ID]; busy {
		logging.Debugf("Transaction %s already being verified", tx.ID)
		return
	}
	if c.closing {
		logging.Warnf("Shutting down, leaving transaction %s unfinished", tx.ID)
		c.abandon(owner)
		return
	}
	c.inFlight[tx.ID] = struct{}{}
	settings := c.settingsFor(owner)

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		v := c.check(settings)
		c.dispatcher.Submit(func() { c.conclude(tx, owner, v) })
	}()
}

// check runs off the dispatcher
func (c *Coordinator) check(settings session.Settings) verdict {
	receipt, err := c.receipts.ReadReceipt()
	if err != nil {
		logging.Errorf("Failed to read receipt: %v", err)
		return verdict{Result: c.terminal(models.OutcomeVerificationFailed, settings, fmt.Errorf("failed to read receipt: %w", err))}
	}
	res := c.verifier.Verify(context.Background(), verification.Request{
		Receipt:        receipt,
		SharedSecret:   settings.SharedSecret,
		Environment:    settings.Environment,
		ServerAuthOnly: settings.ServerAuthOnly,
	})
	return verdict{Result: res, receipt: receipt}
}

// conclude finishes tx, runs hooks, then delivers the outcome to owner
func (c *Coordinator) conclude(tx *models.Transaction, owner *session.Session, v verdict) {
	if owner != nil && !owner.Done() {
		owner.SetEnvironment(v.Environment)
	}
	c.finalize(tx, owner, v)
	c.deliver(owner, tx, v)
}

func (c *Coordinator) finalize(tx *models.Transaction, owner *session.Session, v verdict) {
	c.queue.FinishTransaction(tx)
	delete(c.inFlight, tx.ID)

	reason := v.reason
	if reason == "" && v.Err != nil {
		reason = v.Err.Error()
	}
	event := models.OutcomeEvent{
		TransactionID:         tx.ID,
		OriginalTransactionID: tx.OriginalID,
		ProductID:             tx.ProductID,
		Outcome:               v.Outcome,
		Environment:           v.Environment,
		Status:                v.Status,
		Attempts:              v.Attempts,
		Cached:                v.Cached,
		Reason:                reason,
		Receipt:               v.receipt,
		Payload:               v.Payload,
		FinishedAt:            time.Now(),
	}
	if owner != nil {
		event.SessionID = owner.ID
		event.ServerAuthOnly = owner.Settings.ServerAuthOnly
	} else {
		event.ServerAuthOnly = c.defaults.ServerAuthOnly
	}

	if v.Outcome == models.OutcomeSuccess {
		logging.Infof("Transaction %s for %s finished: %s (%s, %d attempts)",
			tx.ID, tx.ProductID, v.Outcome, v.Environment, v.Attempts)
	} else {
		logging.Warnf("Transaction %s for %s finished: %s (%s)", tx.ID, tx.ProductID, v.Outcome, reason)
	}

	ctx := context.Background()
	for _, h := range c.hooks {
		h.OnOutcome(ctx, event)
	}
}

func (c *Coordinator) deliver(owner *session.Session, tx *models.Transaction, v verdict) {
	if owner == nil {
		return
	}
	c.sessions.Complete(owner, session.Result{
		Outcome:       v.Outcome,
		Payload:       v.Payload,
		TransactionID: tx.ID,
		Environment:   v.Environment,
		Err:           v.Err,
	})
}

func (c *Coordinator) restoreFinished() {
	owner := c.restoreSession()
	restored := c.restored
	restoring := c.restoring
	c.BeginRestore()

	if !restoring || len(restored) == 0 {
		logging.Infof("Restore finished without restored transactions")
		if owner != nil {
			c.sessions.Complete(owner, session.Result{
				Outcome:     models.OutcomeFailed,
				Environment: owner.Settings.Environment,
				Err:         ErrNothingToRestore,
			})
		}
		return
	}
	if owner == nil {
		logging.Warnf("Restore finished with %d transactions but no restore is in progress", len(restored))
	}

	if c.restoreMode == RestoreEach {
		c.verifyEach(restored, owner)
		return
	}

	latest := restored[len(restored)-1]
	if len(restored) > 1 {
		logging.Warnf("Restore returned %d transactions; verifying only %s, the rest stay unfinished",
			len(restored), latest.ID)
	}
	c.verify(latest, owner)
}

// verifyEach verifies restored transactions one after another. The owner
// gets the first success, or the last result when none succeeded.
func (c *Coordinator) verifyEach(restored []*models.Transaction, owner *session.Session) {
	if c.closing {
		logging.Warnf("Shutting down, leaving %d restored transactions unfinished", len(restored))
		c.abandon(owner)
		return
	}
	var pending []*models.Transaction
	for _, tx := range restored {
		if _, busy := c.inFlight[tx.ID]; busy {
			continue
		}
		c.inFlight[tx.ID] = struct{}{}
		pending = append(pending, tx)
	}
	if len(pending) == 0 {
		if owner != nil {
			c.sessions.Complete(owner, session.Result{
				Outcome:     models.OutcomeFailed,
				Environment: owner.Settings.Environment,
				Err:         ErrNothingToRestore,
			})
		}
		return
	}
	settings := c.settingsFor(owner)

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		var (
			chosen   verdict
			chosenTx *models.Transaction
		)
		for _, tx := range pending {
			v := c.check(settings)
			if v.Outcome == models.OutcomeSuccess && v.Environment != settings.Environment {
				settings.Environment = v.Environment
			}
			c.submitFinalize(tx, owner, v)
			if chosenTx == nil || chosen.Outcome != models.OutcomeSuccess {
				chosen, chosenTx = v, tx
			}
		}
		c.dispatcher.Submit(func() {
			if owner != nil && !owner.Done() {
				owner.SetEnvironment(chosen.Environment)
			}
			c.deliver(owner, chosenTx, chosen)
		})
	}()
}

func (c *Coordinator) abandon(owner *session.Session) {
	if owner == nil {
		return
	}
	c.sessions.Complete(owner, session.Result{
		Outcome:     models.OutcomeFailed,
		Environment: owner.Settings.Environment,
		Err:         ErrShuttingDown,
	})
}

func (c *Coordinator) submitFinalize(tx *models.Transaction, owner *session.Session, v verdict) {
	c.dispatcher.Submit(func() { c.finalize(tx, owner, v) })
}

func (c *Coordinator) restoreFailed(err error) {
	owner := c.restoreSession()
	c.BeginRestore()
	logging.Warnf("Restore failed: %v", err)
	if owner != nil {
		c.sessions.Complete(owner, session.Result{
			Outcome:     models.OutcomeFailed,
			Environment: owner.Settings.Environment,
			Err:         fmt.Errorf("restore failed: %w", err),
		})
	}
}

// owner returns the purchase session a transaction belongs to, if any, and
// binds the session to it. A bound session only claims its own transaction.
func (c *Coordinator) owner(tx *models.Transaction) *session.Session {
	active := c.sessions.Active()
	if active == nil || !active.Claims(tx.ID, tx.ProductID) {
		return nil
	}
	active.Bind(tx.ID)
	return active
}

func (c *Coordinator) restoreSession() *session.Session {
	active := c.sessions.Active()
	if active != nil && active.Kind == session.KindRestore {
		return active
	}
	return nil
}

func (c *Coordinator) settingsFor(owner *session.Session) session.Settings {
	if owner != nil {
		return owner.Settings
	}
	return c.defaults
}

func (c *Coordinator) terminal(outcome models.Outcome, settings session.Settings, err error) verification.Result {
	return verification.Result{
		Outcome:     outcome,
		Status:      verification.NoStatus,
		Environment: settings.Environment,
		Err:         err,
	}
}
