package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inapppay/internal/coordinator"
	"inapppay/internal/models"
	"inapppay/internal/queue"
	"inapppay/internal/session"
	"inapppay/internal/verification"
)

var testReceipt = []byte("receipt-bytes")

// endpoint is a scripted verifyReceipt server; the last status repeats
type endpoint struct {
	srv      *httptest.Server
	mu       sync.Mutex
	statuses []int
	bodies   [][]byte
	gate     chan struct{}
}

func newEndpoint(t *testing.T, statuses ...int) *endpoint {
	e := &endpoint{statuses: statuses}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.bodies = append(e.bodies, body)
		gate := e.gate
		status := e.statuses[0]
		if len(e.statuses) > 1 {
			e.statuses = e.statuses[1:]
		}
		e.mu.Unlock()
		if gate != nil {
			<-gate
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":%d}`, status)
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *endpoint) calls() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.bodies...)
}

func (e *endpoint) hold() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
	return e.gate
}

type fixture struct {
	store      *Store
	sim        *queue.Simulator
	sandbox    *endpoint
	production *endpoint
}

func newFixture(t *testing.T, sandbox, production []int, mode coordinator.RestoreMode) *fixture {
	f := &fixture{
		sim:        queue.NewSimulator(),
		sandbox:    newEndpoint(t, sandbox...),
		production: newEndpoint(t, production...),
	}
	client := verification.NewClient(verification.Options{
		SandboxURL:    f.sandbox.srv.URL,
		ProductionURL: f.production.srv.URL,
		Timeout:       5 * time.Second,
	})
	f.store = New(Options{
		Queue:    f.sim,
		Receipts: queue.NewMemoryReceiptStore(testReceipt),
		Catalog: &queue.StaticCatalogService{Products: []models.ProductDescriptor{
			{ID: "com.app.pro", Title: "Pro", Price: "4.99", Currency: "USD"},
			{ID: "com.app.coins", Title: "Coins", Price: "0.99", Currency: "USD"},
		}},
		Verifier:    client,
		Defaults:    session.Settings{Environment: models.EnvironmentSandbox, SharedSecret: "abc"},
		RestoreMode: mode,
	})
	t.Cleanup(func() {
		f.store.Close()
		f.sim.Close()
	})
	return f
}

func (f *fixture) loadCatalog(t *testing.T) {
	t.Helper()
	products, err := f.store.FetchCatalogAwait(ctx(t), []string{"com.app.pro", "com.app.coins"})
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestPurchaseSuccessFinalizesOnce(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro", SharedSecret: "abc", TestServer: true})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.EnvironmentSandbox, res.Environment)
	assert.JSONEq(t, `{"status":0}`, string(res.Payload))

	calls := f.sandbox.calls()
	require.Len(t, calls, 1)
	expected := fmt.Sprintf(`{"receipt-data":%q,"password":"abc"}`, base64.StdEncoding.EncodeToString(testReceipt))
	assert.JSONEq(t, expected, string(calls[0]))
	assert.Empty(t, f.production.calls())

	assert.Equal(t, []string{res.TransactionID}, f.sim.Finished())
	assert.Empty(t, f.sim.Pending())
}

func TestPurchaseFollowsSandboxRedirect(t *testing.T) {
	f := newFixture(t, []int{0}, []int{verification.StatusSandboxReceipt}, coordinator.RestoreLatest)
	f.loadCatalog(t)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.EnvironmentSandbox, res.Environment)
	assert.Len(t, f.production.calls(), 1)
	assert.Len(t, f.sandbox.calls(), 1)
	assert.Len(t, f.sim.Finished(), 1)
}

func TestPurchaseRedirectLoopIsCapped(t *testing.T) {
	f := newFixture(t, []int{verification.StatusProductionReceipt}, []int{verification.StatusSandboxReceipt}, coordinator.RestoreLatest)
	f.loadCatalog(t)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVerificationFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, verification.ErrTooManyRedirects)
	assert.Equal(t, verification.DefaultMaxAttempts, len(f.production.calls())+len(f.sandbox.calls()))
	assert.Len(t, f.sim.Finished(), 1)
}

func TestPurchaseWithoutCatalog(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoCatalog, res.Outcome)
	f.sim.Flush()
	assert.Empty(t, f.sim.Pending())
	assert.Empty(t, f.sandbox.calls())
	assert.Empty(t, f.production.calls())
}

func TestPurchaseNotAllowed(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	f.sim.SetCanMakePayments(false)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotAllowed, res.Outcome)
	assert.Empty(t, f.sim.Pending())
}

func TestPurchaseUnknownProduct(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.missing"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnknownProduct)
	f.sim.Flush()
	assert.Empty(t, f.sim.Pending())
	assert.Empty(t, f.sim.Finished())
}

func TestPurchaseCancelledByUserReportsFailed(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	f.sim.FailProduct("com.app.pro", &models.PaymentError{Code: models.ErrPaymentCancelled})

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Len(t, f.sim.Finished(), 1)
	assert.Empty(t, f.production.calls())
}

func TestConcurrentPurchaseIsRejected(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	release := f.production.hold()

	first := make(chan session.Result, 1)
	f.store.Purchase(PurchaseRequest{ProductID: "com.app.pro"}, func(res session.Result) { first <- res })
	require.Eventually(t, func() bool { return len(f.production.calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	second, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.coins"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, second.Outcome)
	assert.ErrorIs(t, second.Err, session.ErrBusy)

	close(release)
	select {
	case res := <-first:
		assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("first purchase never completed")
	}
}

func TestAwaitTimeoutLeavesPurchaseRunning(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	release := f.production.hold()

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.store.PurchaseAwait(short, PurchaseRequest{ProductID: "com.app.pro"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool { return len(f.sim.Finished()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestServerAuthOnlySkipsNetwork(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro", ServerAuthOnly: true})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, testReceipt, res.Payload)
	assert.Empty(t, f.production.calls())
	assert.Empty(t, f.sandbox.calls())
	assert.Len(t, f.sim.Finished(), 1)
}

func TestRestoreVerifiesLatestOnly(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.sim.AddPurchased("com.app.pro")
	f.sim.AddPurchased("com.app.coins")

	res, err := f.store.RestoreAwait(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)

	calls := f.sandbox.calls()
	require.Len(t, calls, 1)
	var body map[string]string
	require.NoError(t, json.Unmarshal(calls[0], &body))
	assert.Equal(t, "abc", body["password"])

	assert.Equal(t, []string{res.TransactionID}, f.sim.Finished())
	assert.Len(t, f.sim.Pending(), 1)
}

func TestRestoreEachVerifiesEveryTransaction(t *testing.T) {
	f := newFixture(t, []int{21003, 0}, []int{0}, coordinator.RestoreEach)
	f.sim.AddPurchased("com.app.pro")
	f.sim.AddPurchased("com.app.coins")

	res, err := f.store.RestoreAwait(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Len(t, f.sandbox.calls(), 2)
	finished := f.sim.Finished()
	require.Len(t, finished, 2)
	assert.NotEqual(t, finished[0], finished[1])
	assert.Empty(t, f.sim.Pending())
}

func TestRestoreWithNothingRestored(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)

	res, err := f.store.RestoreAwait(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Empty(t, f.sandbox.calls())
}

func TestRestoreNotAllowed(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.sim.SetCanMakePayments(false)

	res, err := f.store.RestoreAwait(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotAllowed, res.Outcome)
}

func TestCachedProductsAfterFetch(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)

	products, err := f.store.CachedProducts(ctx(t))
	require.NoError(t, err)
	assert.Empty(t, products)

	f.loadCatalog(t)
	products, err = f.store.CachedProducts(ctx(t))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "com.app.pro", products[0].ID)
}

func TestFetchCatalogWhenPaymentsDisabled(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.sim.SetCanMakePayments(false)

	products, err := f.store.FetchCatalogAwait(ctx(t), []string{"com.app.pro"})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestDeferredPurchaseReleasesStore(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	f.sim.DeferProduct("com.app.pro")

	res, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.pro"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, coordinator.ErrDeferred)
	assert.Empty(t, f.production.calls())

	pending := f.sim.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, res.TransactionID, pending[0].ID)

	next, err := f.store.PurchaseAwait(ctx(t), PurchaseRequest{ProductID: "com.app.coins"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, next.Outcome)

	restored, err := f.store.RestoreAwait(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, restored.Outcome)

	// approval arrives later and is verified without a session
	approved := *pending[0]
	approved.State = models.TransactionPurchased
	f.sim.Emit(&approved)
	require.Eventually(t, func() bool {
		for _, id := range f.sim.Finished() {
			if id == approved.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCloseWaitsForRunningVerification(t *testing.T) {
	f := newFixture(t, []int{0}, []int{0}, coordinator.RestoreLatest)
	f.loadCatalog(t)
	release := f.production.hold()

	results := make(chan session.Result, 1)
	f.store.Purchase(PurchaseRequest{ProductID: "com.app.pro"}, func(res session.Result) { results <- res })
	require.Eventually(t, func() bool { return len(f.production.calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	f.store.Close()

	select {
	case res := <-results:
		assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	default:
		t.Fatal("purchase did not complete before Close returned")
	}
	assert.Len(t, f.sim.Finished(), 1)
}
