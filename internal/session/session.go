package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"inapppay/internal/models"
)

var ErrBusy = errors.New("another purchase or restore is in progress")

// Kind of work a session tracks
type Kind int

const (
	KindPurchase Kind = iota
	KindRestore
)

func (k Kind) String() string {
	if k == KindRestore {
		return "restore"
	}
	return "purchase"
}

// Settings control how a session's transactions are verified
type Settings struct {
	Environment    models.Environment
	SharedSecret   string
	ServerAuthOnly bool
}

// Result is delivered to the caller that started the session
type Result struct {
	Outcome       models.Outcome     `json:"outcome"`
	Payload       []byte             `json:"payload,omitempty"`
	TransactionID string             `json:"transaction_id,omitempty"`
	Environment   models.Environment `json:"environment"`
	Err           error              `json:"-"`
}

// Completion receives the session result exactly once
type Completion func(Result)

// Session is the per-attempt state of one purchase or restore
type Session struct {
	ID        string
	Kind      Kind
	ProductID string
	Settings  Settings
	StartedAt time.Time
	// TransactionID is the queue transaction bound to a purchase, empty
	// until the queue reports one
	TransactionID string

	completion Completion
	done       bool
}

// NewPurchase creates a purchase session. done must not be nil.
func NewPurchase(productID string, settings Settings, done Completion) *Session {
	return newSession(KindPurchase, productID, settings, done)
}

// NewRestore creates a restore session
func NewRestore(settings Settings, done Completion) *Session {
	return newSession(KindRestore, "", settings, done)
}

func newSession(kind Kind, productID string, settings Settings, done Completion) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Kind:       kind,
		ProductID:  productID,
		Settings:   settings,
		StartedAt:  time.Now(),
		completion: done,
	}
}

// Owns reports whether a transaction for productID belongs to this session
func (s *Session) Owns(productID string) bool {
	return s.Kind == KindPurchase && s.ProductID == productID
}

// Claims reports whether the queue transaction belongs to this session.
// Before binding any transaction for the product matches.
func (s *Session) Claims(transactionID, productID string) bool {
	if !s.Owns(productID) {
		return false
	}
	return s.TransactionID == "" || s.TransactionID == transactionID
}

// Bind ties the session to its first transaction. Later calls are no-ops.
func (s *Session) Bind(transactionID string) {
	if s.TransactionID == "" {
		s.TransactionID = transactionID
	}
}

// SetEnvironment records an endpoint switch made during verification
func (s *Session) SetEnvironment(env models.Environment) {
	s.Settings.Environment = env
}

// Done reports whether the completion has fired
func (s *Session) Done() bool {
	return s.done
}

func (s *Session) complete(res Result) bool {
	if s.done {
		return false
	}
	s.done = true
	if s.completion != nil {
		s.completion(res)
	}
	return true
}
