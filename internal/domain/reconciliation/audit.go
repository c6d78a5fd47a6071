package reconciliation

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditOutcome is the result recorded for a command
type AuditOutcome string

const (
	AuditOutcomeAccepted AuditOutcome = "accepted"
	AuditOutcomeRejected AuditOutcome = "rejected"
	AuditOutcomeReplayed AuditOutcome = "replayed"
)

// AuditEvent is emitted once for every command, whether it succeeded or not
type AuditEvent struct {
	Operation      string             `json:"operation"`
	Outcome        AuditOutcome       `json:"outcome"`
	CompanyID      uuid.UUID          `json:"company_id"`
	ActorID        uuid.UUID          `json:"actor_id"`
	PaymentID      uuid.UUID          `json:"payment_id"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	ErrorClass     string             `json:"error_class,omitempty"`
	Message        string             `json:"message,omitempty"`
	Violations     []shared.Violation `json:"violations,omitempty"`
	DomainEvents   []string           `json:"domain_events,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
