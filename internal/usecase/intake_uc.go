// File: internal/usecase/intake_uc.go
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"billz/internal/domain"
	"billz/internal/domain/model"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
	"billz/internal/infra/logging"
	"billz/internal/infra/metrics"
)

// Compile-time check
var _ IntakeUseCase = (*intakeUC)(nil)

type IntakeUseCase interface {
	// Requirements returns what a caller has to pay for automationID.
	Requirements(ctx context.Context, automationID string) (*model.PaymentRequirements, error)
	// Submit verifies the proof and queues one execution for it.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// ProofGuard is an optional fast replay check in front of the ledger insert.
type ProofGuard interface {
	Reserve(ctx context.Context, hash string) (bool, error)
	Release(ctx context.Context, hash string) error
}

type SubmitRequest struct {
	AutomationID string
	Params       json.RawMessage
	ProofHeader  string
}

type SubmitResult struct {
	JobID     string
	PaymentID string
	Status    model.ExecutionStatus
	StatusURL string
}

type IntakeConfig struct {
	PublicAPIURL      string
	Asset             string
	Network           string
	MaxTimeoutSeconds int
	Dev               bool
}

const intakePath = "/api/execute-automation"

type intakeUC struct {
	catalog    model.Catalog
	protocol   adapter.PaymentProtocol
	payments   repository.PaymentRepository
	executions repository.ExecutionRepository
	tm         repository.TransactionManager
	guard      ProofGuard
	cfg        IntakeConfig
	log        *zerolog.Logger
	now        func() time.Time
}

// NewIntakeUseCase wires the intake flow. guard may be nil.
func NewIntakeUseCase(
	catalog model.Catalog,
	protocol adapter.PaymentProtocol,
	payments repository.PaymentRepository,
	executions repository.ExecutionRepository,
	tm repository.TransactionManager,
	guard ProofGuard,
	cfg IntakeConfig,
	logger *zerolog.Logger,
) *intakeUC {
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = 300
	}
	cfg.PublicAPIURL = strings.TrimRight(cfg.PublicAPIURL, "/")
	l := logger.With().Str("component", "intake").Logger()
	return &intakeUC{
		catalog:    catalog,
		protocol:   protocol,
		payments:   payments,
		executions: executions,
		tm:         tm,
		guard:      guard,
		cfg:        cfg,
		log:        &l,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (u *intakeUC) Requirements(ctx context.Context, automationID string) (*model.PaymentRequirements, error) {
	a, err := u.catalog.Lookup(automationID)
	if err != nil {
		return nil, err
	}
	return u.requirementsFor(ctx, a)
}

func (u *intakeUC) requirementsFor(ctx context.Context, a model.Automation) (*model.PaymentRequirements, error) {
	req, err := u.protocol.BuildRequirements(ctx, adapter.RequirementsParams{
		Amount:            a.PriceAtomicUnits,
		Asset:             u.cfg.Asset,
		Network:           u.cfg.Network,
		Description:       a.Description,
		Resource:          u.cfg.PublicAPIURL + intakePath,
		MimeType:          "application/json",
		MaxTimeoutSeconds: u.cfg.MaxTimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("build requirements: %w", err)
	}
	return req, nil
}

// normalizeParams accepts an absent, null or JSON object value; workflow
// backends receive the object as their input.
func normalizeParams(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("%w: params must be a JSON object", domain.ErrInvalidArgument)
	}
	return json.RawMessage(trimmed), nil
}

// ProofHash is the ledger's uniqueness key for a payment proof.
func ProofHash(header string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(header)))
	return hex.EncodeToString(sum[:])
}

func (u *intakeUC) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "IntakeUC.Submit")()

	a, err := u.catalog.Lookup(req.AutomationID)
	if err != nil {
		return nil, err
	}
	params, err := normalizeParams(req.Params)
	if err != nil {
		return nil, err
	}
	reqs, err := u.requirementsFor(ctx, a)
	if err != nil {
		return nil, err
	}

	proof := strings.TrimSpace(req.ProofHeader)
	if proof == "" {
		metrics.IncPayment(a.ID, "required")
		return nil, &PaymentRequiredError{Requirements: reqs, Missing: true}
	}

	hash := ProofHash(proof)
	if u.guard != nil {
		fresh, gErr := u.guard.Reserve(ctx, hash)
		if gErr != nil {
			// the unique index still catches replays
			log.Warn().Err(gErr).Msg("proof guard unavailable")
		} else if !fresh {
			metrics.IncPayment(a.ID, "duplicate")
			return nil, domain.ErrDuplicatePayment
		}
	}
	release := func() {
		if u.guard != nil {
			if rErr := u.guard.Release(context.Background(), hash); rErr != nil {
				log.Warn().Err(rErr).Msg("release proof reservation")
			}
		}
	}

	verified, err := u.protocol.Verify(ctx, proof, reqs)
	if err != nil {
		release()
		metrics.IncPayment(a.ID, "verify_error")
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if !verified.Valid {
		release()
		metrics.IncPayment(a.ID, "invalid")
		reason := strings.TrimSpace(verified.InvalidReason)
		if reason == "" {
			reason = ReasonInvalidPayment
		}
		log.Info().Str("reason", reason).Str("proof", logging.Redact(proof, u.cfg.Dev)).Msg("payment rejected")
		return nil, &PaymentRequiredError{Requirements: reqs, Reason: reason}
	}

	snapshot, err := json.Marshal(reqs)
	if err != nil {
		release()
		return nil, fmt.Errorf("snapshot requirements: %w", err)
	}
	now := u.now()
	p := &model.Payment{
		ID:           uuid.NewString(),
		AutomationID: a.ID,
		Amount:       a.PriceAtomicUnits,
		ProofHeader:  proof,
		ProofHash:    hash,
		Requirements: snapshot,
		VerifiedAt:   now,
		RefundStatus: model.RefundStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	e := &model.Execution{
		ID:           ulid.Make().String(),
		PaymentID:    p.ID,
		AutomationID: a.ID,
		Params:       params,
		Status:       model.ExecutionStatusPending,
		CreatedAt:    now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		return u.executions.Create(ctx, tx, e)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePayment) {
			// keep the reservation: the proof is spent
			metrics.IncPayment(a.ID, "duplicate")
			return nil, err
		}
		release()
		metrics.IncPayment(a.ID, "store_error")
		return nil, fmt.Errorf("record payment: %w", err)
	}

	metrics.IncPayment(a.ID, "accepted")
	log.Info().
		Str("job_id", e.ID).
		Str("payment_id", p.ID).
		Str("automation", a.ID).
		Str("amount", strconv.FormatInt(p.Amount, 10)).
		Str("payer", logging.Redact(verified.Payer, u.cfg.Dev)).
		Msg("payment verified, job queued")

	return &SubmitResult{
		JobID:     e.ID,
		PaymentID: p.ID,
		Status:    e.Status,
		StatusURL: "/api/job/" + e.ID + "/status",
	}, nil
}
