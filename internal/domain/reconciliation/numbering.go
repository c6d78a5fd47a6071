package reconciliation

import (
	"fmt"
	"regexp"
	"time"
)

var paymentNumberPattern = regexp.MustCompile(`^PAY-\d{8}-\d{4,}$`)

// FormatPaymentNumber renders the company-facing payment number
// PAY-YYYYMMDD-NNNN for the given day and daily sequence.
func FormatPaymentNumber(day time.Time, sequence int) string {
	return fmt.Sprintf("PAY-%s-%04d", day.UTC().Format("20060102"), sequence)
}

// IsValidPaymentNumber reports whether s follows the payment number format
func IsValidPaymentNumber(s string) bool {
	if !paymentNumberPattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("20060102", s[4:12])
	return err == nil
}
