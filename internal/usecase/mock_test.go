//go:build !integration

package usecase_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
)

// ---- Payment protocol ----

type MockProtocol struct {
	mu          sync.Mutex
	VerifyFunc  func(ctx context.Context, proof string, req *model.PaymentRequirements) (*adapter.VerifyResult, error)
	SettleFunc  func(ctx context.Context, proof string, req *model.PaymentRequirements) (*adapter.SettleResult, error)
	SettleCalls int
}

var _ adapter.PaymentProtocol = (*MockProtocol)(nil)

func (m *MockProtocol) BuildRequirements(ctx context.Context, p adapter.RequirementsParams) (*model.PaymentRequirements, error) {
	return &model.PaymentRequirements{
		Scheme:            "exact",
		Network:           p.Network,
		MaxAmountRequired: strconv.FormatInt(p.Amount, 10),
		Resource:          p.Resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		PayTo:             "Treasury111",
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Asset:             p.Asset,
	}, nil
}

func (m *MockProtocol) Verify(ctx context.Context, proof string, req *model.PaymentRequirements) (*adapter.VerifyResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, proof, req)
	}
	return &adapter.VerifyResult{Valid: true, Payer: "Payer111"}, nil
}

func (m *MockProtocol) Settle(ctx context.Context, proof string, req *model.PaymentRequirements) (*adapter.SettleResult, error) {
	m.mu.Lock()
	m.SettleCalls++
	m.mu.Unlock()
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, proof, req)
	}
	return &adapter.SettleResult{Success: true, Transaction: "settle-sig"}, nil
}

// ---- Workflow backend ----

type MockWorkflow struct {
	mu          sync.Mutex
	Calls       int
	ExecuteFunc func(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error)
}

var _ adapter.WorkflowBackend = (*MockWorkflow)(nil)

func (m *MockWorkflow) Execute(ctx context.Context, automationID string, params json.RawMessage) (json.RawMessage, error) {
	m.mu.Lock()
	m.Calls++
	n := m.Calls
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, automationID, params)
	}
	return json.RawMessage(`{"attempt":` + strconv.Itoa(n) + `}`), nil
}

// ---- Funds transfer ----

type transferCall struct {
	Destination string
	Amount      int64
	Asset       string
}

type MockTransfer struct {
	mu           sync.Mutex
	Calls        []transferCall
	TransferFunc func(ctx context.Context, destination string, amount int64, asset string) (string, error)
}

var _ adapter.FundsTransfer = (*MockTransfer)(nil)

func (m *MockTransfer) Transfer(ctx context.Context, destination string, amount int64, asset string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, transferCall{destination, amount, asset})
	m.mu.Unlock()
	if m.TransferFunc != nil {
		return m.TransferFunc(ctx, destination, amount, asset)
	}
	return "refund-sig", nil
}

// ---- Alerter ----

type MockAlerter struct {
	mu       sync.Mutex
	Messages []string
}

var _ adapter.Alerter = (*MockAlerter)(nil)

func (m *MockAlerter) Alert(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, text)
	return nil
}

func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// ---- Transaction manager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// Hold simulates another process owning key.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// ---- Proof guard ----

type MockGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	Released []string
}

func NewMockGuard() *MockGuard { return &MockGuard{held: map[string]bool{}} }

func (g *MockGuard) Reserve(ctx context.Context, hash string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[hash] {
		return false, nil
	}
	g.held[hash] = true
	return true, nil
}

func (g *MockGuard) Release(ctx context.Context, hash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, hash)
	g.Released = append(g.Released, hash)
	return nil
}

// ---- helpers ----

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// proofFor builds an X-PAYMENT header whose payload names sender as payer.
func proofFor(sender string) string {
	raw, _ := json.Marshal(map[string]any{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     "solana-devnet",
		"payload":     map[string]any{"sender": sender, "transaction": uuid.NewString()},
	})
	return base64.StdEncoding.EncodeToString(raw)
}

func testCatalog() model.Catalog {
	return model.Catalog{
		"a": {ID: "a", Name: "A", PriceAtomicUnits: 2_500_000, Description: "test automation"},
	}
}

// recordingSleeper returns immediately and remembers the requested delays.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}
