package reconciliation

// PaymentMethod represents how the customer paid
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodACH          PaymentMethod = "ach"
	PaymentMethodOther        PaymentMethod = "other"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodCreditCard,
		PaymentMethodBankTransfer, PaymentMethodACH, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// RefundMethod represents how money is returned to the customer
type RefundMethod string

const (
	RefundMethodOriginal     RefundMethod = "original" // Same channel as the payment
	RefundMethodCash         RefundMethod = "cash"
	RefundMethodCheck        RefundMethod = "check"
	RefundMethodBankTransfer RefundMethod = "bank_transfer"
	RefundMethodCreditCard   RefundMethod = "credit_card"
	RefundMethodCreditNote   RefundMethod = "credit_note" // Store credit, always allowed
)

// IsValid checks if the refund method is valid
func (m RefundMethod) IsValid() bool {
	switch m {
	case RefundMethodOriginal, RefundMethodCash, RefundMethodCheck,
		RefundMethodBankTransfer, RefundMethodCreditCard, RefundMethodCreditNote:
		return true
	}
	return false
}

// String returns the string representation of RefundMethod
func (m RefundMethod) String() string {
	return string(m)
}

// Resolve maps the original alias onto the payment's own method
func (m RefundMethod) Resolve(paid PaymentMethod) RefundMethod {
	if m == RefundMethodOriginal {
		return RefundMethod(paid)
	}
	return m
}

// interchangeable methods can refund one another
var interchangeable = map[string]struct{}{
	string(PaymentMethodCash):         {},
	string(PaymentMethodCheck):        {},
	string(PaymentMethodCreditCard):   {},
	string(PaymentMethodBankTransfer): {},
}

// IsCompatibleWith reports whether a refund through m may return money
// received through paid.
func (m RefundMethod) IsCompatibleWith(paid PaymentMethod) bool {
	resolved := m.Resolve(paid)
	if resolved == RefundMethodCreditNote {
		return true
	}
	if string(resolved) == string(paid) {
		return true
	}
	_, refundSide := interchangeable[string(resolved)]
	_, paidSide := interchangeable[string(paid)]
	return refundSide && paidSide
}
