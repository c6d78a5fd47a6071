package reconciliation

// PaymentStatus represents the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // Captured upstream, not yet settled
	PaymentStatusCompleted PaymentStatus = "completed" // Settled and available for allocation
	PaymentStatusVoided    PaymentStatus = "voided"    // Reversed; terminal
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusVoided:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusVoided
}

// CanAllocate returns true if allocations can be made in this status
func (s PaymentStatus) CanAllocate() bool {
	return s == PaymentStatusCompleted
}

// CanVoid returns true if the status itself permits a void
func (s PaymentStatus) CanVoid() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted
}

// InvoiceStatus represents the billing state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsOpen returns true if the invoice can receive payment
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartial
}

// IsLedgerManaged returns true if payment activity drives this status.
// Draft and void invoices are never touched by reconciliation.
func (s InvoiceStatus) IsLedgerManaged() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartial || s == InvoiceStatusPaid
}

// AllocationMethod selects how a payment is spread over invoices
type AllocationMethod string

const (
	AllocationMethodManual  AllocationMethod = "manual"   // Caller supplies exact amounts
	AllocationMethodFIFO    AllocationMethod = "fifo"     // Oldest invoices first
	AllocationMethodLIFO    AllocationMethod = "lifo"     // Newest invoices first
	AllocationMethodProRata AllocationMethod = "pro_rata" // Proportional to outstanding balance
)

// IsValid checks if the method is a known AllocationMethod
func (m AllocationMethod) IsValid() bool {
	switch m {
	case AllocationMethodManual, AllocationMethodFIFO, AllocationMethodLIFO, AllocationMethodProRata:
		return true
	}
	return false
}

// String returns the string representation of AllocationMethod
func (m AllocationMethod) String() string {
	return string(m)
}

// IsAlgorithmic returns true if the method computes amounts itself
func (m AllocationMethod) IsAlgorithmic() bool {
	return m == AllocationMethodFIFO || m == AllocationMethodLIFO || m == AllocationMethodProRata
}
