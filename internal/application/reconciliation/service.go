package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "reconciliation"

// idempotencyReservationTTL bounds how long a crashed attempt blocks retries
// of its key
const idempotencyReservationTTL = 5 * time.Minute

// Operation names used for spans, metrics, audit events and idempotency keys
const (
	OperationAllocate = "allocate"
	OperationVoid     = "void"
	OperationRefund   = "refund"
	OperationSummary  = "summary"
)

// Service runs allocate, void and refund commands against the payment ledger.
// Each command is one transaction: rows are locked, the engine validates and
// mutates the aggregates, and the unit of work persists them.
type Service struct {
	uow            domain.UnitOfWork
	capabilities   CapabilityChecker
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	audit          AuditSink
	metrics        Metrics
	logger         *zap.Logger
	clock          func() time.Time
	oldPaymentDays int
	validate       *validator.Validate

	allocator *domain.AllocationEngine
	voider    *domain.VoidEngine
	refunder  *domain.RefundEngine
}

// Option configures a Service
type Option func(*Service)

// WithIdempotencyStore enables replay protection for commands carrying a key
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithAuditSink sets where command outcomes are recorded
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithMetrics sets the command metrics recorder
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOldPaymentDays sets the age after which void and refund need an
// elevated capability
func WithOldPaymentDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.oldPaymentDays = days
		}
	}
}

// NewService creates a reconciliation service
func NewService(uow domain.UnitOfWork, capabilities CapabilityChecker, opts ...Option) *Service {
	s := &Service{
		uow:            uow,
		capabilities:   capabilities,
		idempotencyTTL: shared.DefaultIdempotencyConfig().TTL,
		audit:          noopAuditSink{},
		metrics:        noopMetrics{},
		logger:         zap.NewNop(),
		clock:          time.Now,
		oldPaymentDays: domain.DefaultOldPaymentDays,
		validate:       newValidator(),
		allocator:      domain.NewAllocationEngine(),
		voider:         domain.NewVoidEngine(),
		refunder:       domain.NewRefundEngine(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllocatePayment applies a payment to invoices, either from explicit
// entries or by a fifo, lifo or pro_rata strategy
func (s *Service) AllocatePayment(ctx context.Context, cc CommandContext, cmd AllocatePaymentCommand) (*AllocationResult, error) {
	req := toAllocationRequest(cmd)
	desc := command{
		operation:  OperationAllocate,
		capability: domain.CapabilityAllocate,
		paymentID:  cmd.PaymentID,
		cc:         cc,
		attributes: []any{"method", string(req.EffectiveMethod()), "auto_allocate", cmd.AutoAllocate},
	}
	return execute(ctx, s, desc,
		func() error { return validateAllocate(s.validate, cmd) },
		func(ctx context.Context, ec domain.Context, ledger domain.Ledger, tr *tracker) (*AllocationResult, error) {
			payment, err := s.lockPayment(ctx, ledger, cmd.PaymentID)
			if err != nil {
				return nil, err
			}
			tr.payment = payment

			var invoices []*domain.Invoice
			if req.AutoAllocate {
				invoices, err = ledger.Invoices().FindOpenForCustomer(ctx, payment.CompanyID, payment.CustomerID, payment.PaymentDate)
			} else {
				invoices, err = ledger.Invoices().FindForUpdate(ctx, entryInvoiceIDs(cmd.Allocations))
			}
			if err != nil {
				return nil, fmt.Errorf("failed to lock invoices: %w", err)
			}

			out, err := s.allocator.Allocate(ec, payment, invoices, req)
			if err != nil {
				return nil, err
			}

			if err := ledger.Allocations().CreateBatch(ctx, out.Allocations); err != nil {
				return nil, fmt.Errorf("failed to create allocations: %w", err)
			}
			if err := saveInvoices(ctx, ledger, out.Invoices); err != nil {
				return nil, err
			}
			if err := ledger.Payments().Save(ctx, payment); err != nil {
				return nil, fmt.Errorf("failed to save payment: %w", err)
			}

			tr.amount = out.TotalAllocated()
			return toAllocationResult(req, out), nil
		})
}

// VoidPayment reverses a payment that was never allocated or refunded
func (s *Service) VoidPayment(ctx context.Context, cc CommandContext, cmd VoidPaymentCommand) (*domain.Reversal, error) {
	desc := command{
		operation:  OperationVoid,
		capability: domain.CapabilityVoid,
		elevated:   domain.CapabilityVoidOld,
		paymentID:  cmd.PaymentID,
		cc:         cc,
	}
	return execute(ctx, s, desc,
		func() error { return validateVoid(s.validate, cmd) },
		func(ctx context.Context, ec domain.Context, ledger domain.Ledger, tr *tracker) (*domain.Reversal, error) {
			payment, err := s.lockPayment(ctx, ledger, cmd.PaymentID)
			if err != nil {
				return nil, err
			}
			tr.payment = payment

			voidDate := cmd.VoidDate
			if voidDate.IsZero() {
				voidDate = ec.Today()
			}
			reversal, err := s.voider.Void(ec, payment, domain.VoidRequest{VoidDate: voidDate, Reason: cmd.Reason})
			if err != nil {
				return nil, err
			}

			if err := ledger.Reversals().Create(ctx, reversal); err != nil {
				return nil, fmt.Errorf("failed to create reversal: %w", err)
			}
			if err := ledger.Payments().Save(ctx, payment); err != nil {
				return nil, fmt.Errorf("failed to save payment: %w", err)
			}

			tr.amount = reversal.Amount
			return reversal, nil
		})
}

// RefundPayment returns allocated money, either tied to given invoices or
// spread over the payment's invoices oldest allocation first
func (s *Service) RefundPayment(ctx context.Context, cc CommandContext, cmd RefundPaymentCommand) (*RefundResult, error) {
	req := toRefundRequest(cmd)
	desc := command{
		operation:  OperationRefund,
		capability: domain.CapabilityRefund,
		elevated:   domain.CapabilityRefundOld,
		paymentID:  cmd.PaymentID,
		cc:         cc,
		attributes: []any{"method", cmd.RefundMethod, "amount", cmd.RefundAmount.String()},
	}
	return execute(ctx, s, desc,
		func() error { return validateRefund(s.validate, cmd) },
		func(ctx context.Context, ec domain.Context, ledger domain.Ledger, tr *tracker) (*RefundResult, error) {
			payment, err := s.lockPayment(ctx, ledger, cmd.PaymentID)
			if err != nil {
				return nil, err
			}
			tr.payment = payment

			if req.RefundDate.IsZero() {
				req.RefundDate = ec.Today()
			}
			invoices, err := ledger.Invoices().FindForUpdate(ctx, req.InvoiceIDs(payment))
			if err != nil {
				return nil, fmt.Errorf("failed to lock invoices: %w", err)
			}

			out, err := s.refunder.Refund(ec, payment, invoices, req)
			if err != nil {
				return nil, err
			}

			if err := ledger.Refunds().CreateBatch(ctx, out.Refunds); err != nil {
				return nil, fmt.Errorf("failed to create refunds: %w", err)
			}
			if err := saveInvoices(ctx, ledger, out.Invoices); err != nil {
				return nil, err
			}
			if err := ledger.Payments().Save(ctx, payment); err != nil {
				return nil, fmt.Errorf("failed to save payment: %w", err)
			}

			tr.amount = out.TotalRefunded()
			return toRefundResult(out), nil
		})
}

// GetPaymentSummary returns the reconciliation state of a payment without
// locking anything
func (s *Service) GetPaymentSummary(ctx context.Context, cc CommandContext, paymentID uuid.UUID) (*PaymentSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, OperationSummary)
	defer span.End()
	telemetry.SetAttributes(span,
		"company_id", cc.CompanyID.String(),
		"payment_id", paymentID.String(),
	)

	if err := validateCommandContext(s.validate, cc); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if v := requireID("payment_id", paymentID); len(v) > 0 {
		return nil, shared.NewValidationError(v...)
	}

	reader := s.uow.Reader()
	payment, err := reader.Payments().FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil || !payment.BelongsTo(cc.CompanyID) {
		return nil, paymentNotFound(paymentID)
	}

	invoices, err := reader.Invoices().FindByIDs(ctx, payment.PairedInvoiceIDs())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}
	return toPaymentSummary(payment, invoices), nil
}

func (s *Service) lockPayment(ctx context.Context, ledger domain.Ledger, id uuid.UUID) (*domain.Payment, error) {
	payment, err := ledger.Payments().FindForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	if payment == nil {
		return nil, paymentNotFound(id)
	}
	return payment, nil
}

func saveInvoices(ctx context.Context, ledger domain.Ledger, invoices []*domain.Invoice) error {
	for _, inv := range invoices {
		if err := ledger.Invoices().Save(ctx, inv); err != nil {
			return fmt.Errorf("failed to save invoice %s: %w", inv.InvoiceNumber, err)
		}
	}
	return nil
}

func paymentNotFound(id uuid.UUID) error {
	return shared.NewPolicyError(shared.PolicyCodeNotFound, "",
		fmt.Sprintf("Payment %s not found", id))
}

// command describes one invocation for the shared execution path
type command struct {
	operation  string
	capability domain.Capability
	elevated   domain.Capability
	paymentID  uuid.UUID
	cc         CommandContext
	attributes []any
}

// tracker collects what a command touched, for auditing and metrics
type tracker struct {
	payment *domain.Payment
	amount  decimal.Decimal
}

// execute is the shared command pipeline: validation, base capability,
// idempotent replay, the transactional run, then audit and metrics
func execute[T any](
	ctx context.Context,
	s *Service,
	cmd command,
	validate func() error,
	run func(ctx context.Context, ec domain.Context, ledger domain.Ledger, tr *tracker) (T, error),
) (T, error) {
	var zero T
	started := time.Now()

	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, cmd.operation)
	defer span.End()
	telemetry.SetAttributes(span,
		"company_id", cmd.cc.CompanyID.String(),
		"payment_id", cmd.paymentID.String(),
	)
	if len(cmd.attributes) > 0 {
		telemetry.SetAttributes(span, cmd.attributes...)
	}

	ctx = logger.WithCompanyID(ctx, cmd.cc.CompanyID.String())
	ctx = logger.WithActorID(ctx, cmd.cc.ActorID.String())
	log := logger.For(ctx, s.logger).With(
		zap.String("operation", cmd.operation),
		zap.String("payment_id", cmd.paymentID.String()),
	)

	event := domain.AuditEvent{
		Operation:      cmd.operation,
		CompanyID:      cmd.cc.CompanyID,
		ActorID:        cmd.cc.ActorID,
		PaymentID:      cmd.paymentID,
		IdempotencyKey: cmd.cc.IdempotencyKey,
	}

	reject := func(err error) (T, error) {
		class := shared.ErrorClass(err)
		telemetry.RecordError(span, err)
		event.Outcome = domain.AuditOutcomeRejected
		event.ErrorClass = class
		event.Message = err.Error()
		if ve, ok := shared.AsValidationError(err); ok {
			event.Violations = ve.Violations
		}
		event.OccurredAt = s.clock()
		s.audit.Record(ctx, event)
		s.metrics.RecordCommand(ctx, cmd.operation, class, time.Since(started))

		if class == "error" {
			log.Error("Reconciliation command failed", zap.Error(err))
		} else {
			log.Warn("Reconciliation command rejected", zap.String("error_class", class), zap.Error(err))
		}
		return zero, err
	}

	if err := validateCommandContext(s.validate, cmd.cc); err != nil {
		return reject(err)
	}
	if err := validate(); err != nil {
		return reject(err)
	}
	if !s.capabilities.HasCapability(ctx, cmd.cc.ActorID, cmd.capability.String()) {
		return reject(shared.NewPolicyError(shared.PolicyCodeForbidden, cmd.capability.String(),
			fmt.Sprintf("Actor %s lacks capability %s", cmd.cc.ActorID, cmd.capability)))
	}

	key := s.idempotencyKey(cmd)
	if key != "" {
		stored, found, err := s.claim(ctx, key)
		if err != nil {
			return reject(err)
		}
		if found {
			var replayed T
			if err := json.Unmarshal(stored, &replayed); err != nil {
				return reject(fmt.Errorf("failed to decode stored result: %w", err))
			}
			telemetry.AddEvent(span, "idempotent_replay", "key", cmd.cc.IdempotencyKey)
			event.Outcome = domain.AuditOutcomeReplayed
			event.OccurredAt = s.clock()
			s.audit.Record(ctx, event)
			s.metrics.RecordCommand(ctx, cmd.operation, string(domain.AuditOutcomeReplayed), time.Since(started))
			log.Info("Reconciliation command replayed", zap.String("idempotency_key", cmd.cc.IdempotencyKey))
			return replayed, nil
		}
	}

	ec := s.engineContext(ctx, cmd)
	tr := &tracker{}
	var result T
	err := s.uow.Do(ctx, func(txCtx context.Context, ledger domain.Ledger) error {
		r, err := run(txCtx, ec, ledger, tr)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if key != "" {
			s.release(ctx, log, key)
		}
		return reject(err)
	}

	if tr.payment != nil {
		for _, e := range tr.payment.GetDomainEvents() {
			event.DomainEvents = append(event.DomainEvents, e.EventType())
		}
		tr.payment.ClearDomainEvents()
	}

	if key != "" {
		s.remember(ctx, log, key, result)
	}

	telemetry.SetOK(span)
	event.Outcome = domain.AuditOutcomeAccepted
	event.OccurredAt = s.clock()
	s.audit.Record(ctx, event)
	s.metrics.RecordCommand(ctx, cmd.operation, string(domain.AuditOutcomeAccepted), time.Since(started))
	s.metrics.RecordAmount(ctx, cmd.operation, tr.amount)
	log.Info("Reconciliation command accepted",
		zap.String("amount", tr.amount.StringFixed(2)),
		zap.Strings("domain_events", event.DomainEvents),
	)
	return result, nil
}

// engineContext resolves the elevated capability once so that engines never
// consult the checker themselves
func (s *Service) engineContext(ctx context.Context, cmd command) domain.Context {
	var granted []domain.Capability
	if cmd.elevated != "" && s.capabilities.HasCapability(ctx, cmd.cc.ActorID, cmd.elevated.String()) {
		granted = append(granted, cmd.elevated)
	}
	return domain.NewContext(cmd.cc.CompanyID, cmd.cc.ActorID, s.clock(), granted...).
		WithOldPaymentDays(s.oldPaymentDays)
}

// idempotencyKey scopes the caller's key to the operation, company and
// payment. It is empty when the command carries no key or no store is
// configured.
func (s *Service) idempotencyKey(cmd command) string {
	if s.idempotency == nil || cmd.cc.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s:%s", cmd.operation, cmd.cc.CompanyID, cmd.paymentID, cmd.cc.IdempotencyKey)
}

// claim returns the stored result for key, or reserves key for this attempt.
// An attempt that finds key reserved by another one still in flight gets a
// concurrency conflict and may retry once that one finishes.
func (s *Service) claim(ctx context.Context, key string) ([]byte, bool, error) {
	stored, found, err := s.idempotency.Seen(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if found {
		return stored, true, nil
	}

	reserved, err := s.idempotency.Reserve(ctx, key, idempotencyReservationTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, false, nil
	}

	// The holder may have committed between the two calls
	stored, found, err = s.idempotency.Seen(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if !found {
		return nil, false, fmt.Errorf("command with the same idempotency key is in progress: %w", shared.ErrConcurrencyConflict)
	}
	return stored, true, nil
}

// release frees key after a failed attempt so a retry can run. It outlives
// a cancelled command context.
func (s *Service) release(ctx context.Context, log *zap.Logger, key string) {
	if err := s.idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("Failed to release idempotency key", zap.Error(err))
	}
}

// remember stores the committed result under key
func (s *Service) remember(ctx context.Context, log *zap.Logger, key string, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		log.Warn("Failed to encode result for idempotency", zap.Error(err))
		s.release(ctx, log, key)
		return
	}
	if err := s.idempotency.Remember(context.WithoutCancel(ctx), key, encoded, s.idempotencyTTL); err != nil {
		log.Error("Failed to remember idempotency key", zap.Error(err))
	}
}

func toAllocationRequest(cmd AllocatePaymentCommand) domain.AllocationRequest {
	entries := make([]domain.AllocationEntry, len(cmd.Allocations))
	for i, a := range cmd.Allocations {
		entries[i] = domain.AllocationEntry{
			InvoiceID:      a.InvoiceID,
			Amount:         valueobject.NormalizeAmount(a.Amount),
			AllocationDate: a.AllocationDate,
			Notes:          a.Notes,
		}
	}
	method := domain.AllocationMethod(cmd.AllocationMethod)
	if cmd.AutoAllocate && method == "" {
		method = domain.AllocationMethodFIFO
	}
	return domain.AllocationRequest{
		Entries:      entries,
		AutoAllocate: cmd.AutoAllocate,
		Method:       method,
		Notes:        cmd.Notes,
	}
}

func toRefundRequest(cmd RefundPaymentCommand) domain.RefundRequest {
	lines := make([]domain.RefundLine, len(cmd.Allocations))
	for i, a := range cmd.Allocations {
		lines[i] = domain.RefundLine{InvoiceID: a.InvoiceID, Amount: valueobject.NormalizeAmount(a.Amount)}
	}
	return domain.RefundRequest{
		Amount:          valueobject.NormalizeAmount(cmd.RefundAmount),
		Lines:           lines,
		RefundDate:      cmd.RefundDate,
		Method:          domain.RefundMethod(cmd.RefundMethod),
		Reason:          cmd.Reason,
		ReferenceNumber: cmd.ReferenceNumber,
		CheckNumber:     cmd.CheckNumber,
		BankAccountID:   cmd.BankAccountID,
		Notes:           cmd.Notes,
	}
}

func entryInvoiceIDs(entries []AllocationInput) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(entries))
	seen := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		if seen[e.InvoiceID] {
			continue
		}
		seen[e.InvoiceID] = true
		ids = append(ids, e.InvoiceID)
	}
	return ids
}
