// Package payment is the purchase orchestrator: it ties the payment queue,
// the product catalog, purchase sessions and receipt verification together
// behind callback and awaitable operations.
//
// Callbacks always run on the store's dispatcher goroutine. The Await forms
// must not be called from inside a callback.
package payment

import (
	"context"
	"errors"

	"inapppay/internal/catalog"
	"inapppay/internal/coordinator"
	"inapppay/internal/dispatch"
	"inapppay/internal/future"
	"inapppay/internal/models"
	"inapppay/internal/queue"
	"inapppay/internal/session"
	"inapppay/pkg/logging"
)

var (
	ErrUnknownProduct = errors.New("product is not in the catalog")
	ErrNoCatalog      = errors.New("product catalog is empty")
	ErrNotAllowed     = errors.New("payments are not allowed on this device")
)

type Options struct {
	Queue    queue.PaymentQueue
	Receipts queue.ReceiptStore
	Catalog  queue.CatalogService
	Verifier coordinator.Verifier

	// Defaults verify restores and transactions no purchase owns
	Defaults    session.Settings
	RestoreMode coordinator.RestoreMode
	Hooks       []coordinator.Hook
}

// PurchaseRequest describes one purchase
type PurchaseRequest struct {
	ProductID      string
	SharedSecret   string
	TestServer     bool
	ServerAuthOnly bool
}

// Store is one orchestrator instance. Create it with New and release it
// with Close.
type Store struct {
	queue      queue.PaymentQueue
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	catalog    *catalog.Catalog
	coord      *coordinator.Coordinator
	defaults   session.Settings
}

func New(opts Options) *Store {
	d := dispatch.New()
	sessions := session.NewManager()
	coord := coordinator.New(coordinator.Options{
		Queue:       opts.Queue,
		Receipts:    opts.Receipts,
		Verifier:    opts.Verifier,
		Dispatcher:  d,
		Sessions:    sessions,
		Defaults:    opts.Defaults,
		RestoreMode: opts.RestoreMode,
		Hooks:       opts.Hooks,
	})
	opts.Queue.Observe(coord)

	return &Store{
		queue:      opts.Queue,
		dispatcher: d,
		sessions:   sessions,
		catalog:    catalog.New(opts.Catalog, opts.Queue, d),
		coord:      coord,
		defaults:   opts.Defaults,
	}
}

// Close waits for running verifications, then stops the dispatcher after
// draining queued callbacks. Must not be called from a callback.
func (s *Store) Close() {
	s.coord.Shutdown()
	s.dispatcher.Close()
}

// Defaults returns the settings used for restores
func (s *Store) Defaults() session.Settings {
	return s.defaults
}

// FetchCatalog requests product metadata. done receives the products, or an
// empty list on any failure.
func (s *Store) FetchCatalog(ctx context.Context, ids []string, done func([]models.ProductDescriptor)) {
	s.catalog.Fetch(context.WithoutCancel(ctx), ids, done)
}

func (s *Store) FetchCatalogAwait(ctx context.Context, ids []string) ([]models.ProductDescriptor, error) {
	p := future.New[[]models.ProductDescriptor]()
	s.FetchCatalog(ctx, ids, func(products []models.ProductDescriptor) { p.Resolve(products) })
	return p.Await(ctx)
}

// CachedProducts returns the catalog from the last successful fetch
func (s *Store) CachedProducts(ctx context.Context) ([]models.ProductDescriptor, error) {
	p := future.New[[]models.ProductDescriptor]()
	s.dispatcher.Submit(func() { p.Resolve(s.catalog.Products()) })
	return p.Await(ctx)
}

// Purchase buys a product and verifies its receipt. done fires exactly once.
func (s *Store) Purchase(req PurchaseRequest, done session.Completion) {
	s.dispatcher.Submit(func() { s.startPurchase(req, done) })
}

func (s *Store) PurchaseAwait(ctx context.Context, req PurchaseRequest) (session.Result, error) {
	p := future.New[session.Result]()
	s.Purchase(req, func(res session.Result) { p.Resolve(res) })
	return p.Await(ctx)
}

// Restore re-verifies past purchases with the default settings
func (s *Store) Restore(done session.Completion) {
	s.RestoreWith(s.defaults, done)
}

// RestoreWith re-verifies past purchases with explicit settings
func (s *Store) RestoreWith(settings session.Settings, done session.Completion) {
	s.dispatcher.Submit(func() { s.startRestore(settings, done) })
}

func (s *Store) RestoreAwait(ctx context.Context) (session.Result, error) {
	return s.RestoreWithAwait(ctx, s.defaults)
}

func (s *Store) RestoreWithAwait(ctx context.Context, settings session.Settings) (session.Result, error) {
	p := future.New[session.Result]()
	s.RestoreWith(settings, func(res session.Result) { p.Resolve(res) })
	return p.Await(ctx)
}

func (s *Store) startPurchase(req PurchaseRequest, done session.Completion) {
	settings := session.Settings{
		Environment:    models.EnvironmentFor(req.TestServer),
		SharedSecret:   req.SharedSecret,
		ServerAuthOnly: req.ServerAuthOnly,
	}
	sess := session.NewPurchase(req.ProductID, settings, done)
	reject := func(outcome models.Outcome, err error) {
		logging.Warnf("Purchase of %s rejected: %s (%v)", req.ProductID, outcome, err)
		session.Reject(sess, session.Result{Outcome: outcome, Environment: settings.Environment, Err: err})
	}

	if s.catalog.Len() == 0 {
		reject(models.OutcomeNoCatalog, ErrNoCatalog)
		return
	}
	if !s.queue.CanMakePayments() {
		reject(models.OutcomeNotAllowed, ErrNotAllowed)
		return
	}
	if _, ok := s.catalog.Product(req.ProductID); !ok {
		reject(models.OutcomeFailed, ErrUnknownProduct)
		return
	}
	if err := s.sessions.Begin(sess); err != nil {
		reject(models.OutcomeFailed, err)
		return
	}

	logging.Infof("Purchasing %s (session %s, %s)", req.ProductID, sess.ID, settings.Environment)
	if err := s.queue.AddPayment(queue.Payment{ProductID: req.ProductID, Quantity: 1}); err != nil {
		s.sessions.Complete(sess, session.Result{Outcome: models.OutcomeFailed, Environment: settings.Environment, Err: err})
	}
}

func (s *Store) startRestore(settings session.Settings, done session.Completion) {
	sess := session.NewRestore(settings, done)

	if !s.queue.CanMakePayments() {
		logging.Warnf("Restore rejected: payments not allowed")
		session.Reject(sess, session.Result{Outcome: models.OutcomeNotAllowed, Environment: settings.Environment, Err: ErrNotAllowed})
		return
	}
	if err := s.sessions.Begin(sess); err != nil {
		session.Reject(sess, session.Result{Outcome: models.OutcomeFailed, Environment: settings.Environment, Err: err})
		return
	}

	logging.Infof("Restoring completed transactions (session %s)", sess.ID)
	s.coord.BeginRestore()
	s.queue.RestoreCompletedTransactions()
}
