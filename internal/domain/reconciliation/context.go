package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// Capability is an action string checked against the caller before a command runs
type Capability string

const (
	CapabilityAllocate  Capability = "payments.allocate"
	CapabilityVoid      Capability = "payments.void"
	CapabilityRefund    Capability = "payments.refund"
	CapabilityVoidOld   Capability = "payments.void_old"
	CapabilityRefundOld Capability = "payments.refund_old"
)

// String returns the string representation of Capability
func (c Capability) String() string {
	return string(c)
}

// DefaultOldPaymentDays is the age after which void and refund need an
// elevated capability
const DefaultOldPaymentDays = 90

// Context carries everything an engine needs to know about the caller and
// the moment of execution. Engines never read ambient state.
type Context struct {
	CompanyID      uuid.UUID
	ActorID        uuid.UUID
	Now            time.Time
	OldPaymentDays int
	granted        map[Capability]bool
}

// NewContext creates an engine context with the resolved elevated capabilities
func NewContext(companyID, actorID uuid.UUID, now time.Time, granted ...Capability) Context {
	c := Context{
		CompanyID:      companyID,
		ActorID:        actorID,
		Now:            now,
		OldPaymentDays: DefaultOldPaymentDays,
		granted:        make(map[Capability]bool, len(granted)),
	}
	for _, g := range granted {
		c.granted[g] = true
	}
	return c
}

// WithOldPaymentDays overrides the age threshold for elevated capabilities
func (c Context) WithOldPaymentDays(days int) Context {
	if days > 0 {
		c.OldPaymentDays = days
	}
	return c
}

// Has reports whether the capability was granted
func (c Context) Has(capability Capability) bool {
	return c.granted[capability]
}

// Today returns the calendar date of Now
func (c Context) Today() time.Time {
	return DateOf(c.Now)
}

// DateOf truncates t to its calendar date in UTC
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of whole calendar days from a to b
func daysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}
