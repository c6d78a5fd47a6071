package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// invoiceAmounts collects repeated -invoice <uuid>=<amount> flags
type invoiceAmounts []invoiceAmount

type invoiceAmount struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

func (v *invoiceAmounts) String() string {
	parts := make([]string, 0, len(*v))
	for _, ia := range *v {
		parts = append(parts, ia.InvoiceID.String()+"="+ia.Amount.String())
	}
	return strings.Join(parts, ",")
}

func (v *invoiceAmounts) Set(value string) error {
	id, amount, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected <invoice-id>=<amount>, got %q", value)
	}
	invoiceID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("invalid invoice id %q: %w", id, err)
	}
	dec, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	*v = append(*v, invoiceAmount{InvoiceID: invoiceID, Amount: dec})
	return nil
}

// dateValue parses YYYY-MM-DD and leaves the zero time when unset
type dateValue struct {
	t time.Time
}

func (d *dateValue) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d *dateValue) Set(value string) error {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	d.t = t
	return nil
}

func (d *dateValue) ptr() *time.Time {
	if d.t.IsZero() {
		return nil
	}
	t := d.t
	return &t
}

// uuidValue is a required or optional UUID flag
type uuidValue struct {
	id  uuid.UUID
	set bool
}

func (u *uuidValue) String() string {
	if !u.set {
		return ""
	}
	return u.id.String()
}

func (u *uuidValue) Set(value string) error {
	id, err := uuid.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid uuid %q", value)
	}
	u.id, u.set = id, true
	return nil
}

// decimalValue is a decimal amount flag
type decimalValue struct {
	d decimal.Decimal
}

func (v *decimalValue) String() string { return v.d.String() }

func (v *decimalValue) Set(value string) error {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("invalid amount %q", value)
	}
	v.d = d
	return nil
}

// commonFlags are shared by every subcommand
type commonFlags struct {
	company uuidValue
	actor   uuidValue
	payment uuidValue
	key     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.Var(&c.company, "company", "Company id (required)")
	fs.Var(&c.actor, "actor", "Acting user id (required)")
	fs.Var(&c.payment, "payment", "Payment id (required)")
	fs.StringVar(&c.key, "key", "", "Idempotency key; a retry with the same key replays the first result")
}

func (c *commonFlags) validate() error {
	var missing []string
	if !c.company.set {
		missing = append(missing, "-company")
	}
	if !c.actor.set {
		missing = append(missing, "-actor")
	}
	if !c.payment.set {
		missing = append(missing, "-payment")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *commonFlags) commandContext() reconciliation.CommandContext {
	return reconciliation.CommandContext{
		CompanyID:      c.company.id,
		ActorID:        c.actor.id,
		IdempotencyKey: c.key,
	}
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}

func parse(fs *flag.FlagSet, c *commonFlags, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return c.validate()
}

func parseAllocate(args []string, output io.Writer) (reconciliation.CommandContext, reconciliation.AllocatePaymentCommand, error) {
	var (
		common   commonFlags
		invoices invoiceAmounts
		date     dateValue
		cmd      reconciliation.AllocatePaymentCommand
	)
	fs := newFlagSet("allocate", output)
	common.register(fs)
	fs.Var(&invoices, "invoice", "Manual allocation <invoice-id>=<amount>, repeatable")
	fs.Var(&date, "date", "Allocation date for manual entries (YYYY-MM-DD)")
	fs.BoolVar(&cmd.AutoAllocate, "auto", false, "Allocate automatically to the customer's open invoices")
	fs.StringVar(&cmd.AllocationMethod, "method", "", "Allocation method: manual, fifo, lifo, pro_rata")
	fs.StringVar(&cmd.Notes, "notes", "", "Notes stored on each allocation")

	if err := parse(fs, &common, args); err != nil {
		return reconciliation.CommandContext{}, cmd, err
	}

	cmd.PaymentID = common.payment.id
	for _, ia := range invoices {
		cmd.Allocations = append(cmd.Allocations, reconciliation.AllocationInput{
			InvoiceID:      ia.InvoiceID,
			Amount:         ia.Amount,
			AllocationDate: date.ptr(),
			Notes:          cmd.Notes,
		})
	}
	return common.commandContext(), cmd, nil
}

func parseVoid(args []string, output io.Writer) (reconciliation.CommandContext, reconciliation.VoidPaymentCommand, error) {
	var (
		common commonFlags
		date   dateValue
		cmd    reconciliation.VoidPaymentCommand
	)
	fs := newFlagSet("void", output)
	common.register(fs)
	fs.Var(&date, "date", "Void date (YYYY-MM-DD, default today)")
	fs.StringVar(&cmd.Reason, "reason", "", "Reason for the void (required)")

	if err := parse(fs, &common, args); err != nil {
		return reconciliation.CommandContext{}, cmd, err
	}
	cmd.PaymentID = common.payment.id
	cmd.VoidDate = date.t
	return common.commandContext(), cmd, nil
}

func parseRefund(args []string, output io.Writer) (reconciliation.CommandContext, reconciliation.RefundPaymentCommand, error) {
	var (
		common      commonFlags
		amount      decimalValue
		date        dateValue
		bankAccount uuidValue
		invoices    invoiceAmounts
		cmd         reconciliation.RefundPaymentCommand
	)
	fs := newFlagSet("refund", output)
	common.register(fs)
	fs.Var(&amount, "amount", "Refund amount (required)")
	fs.Var(&date, "date", "Refund date (YYYY-MM-DD, default today)")
	fs.Var(&invoices, "invoice", "Refund from an invoice <invoice-id>=<amount>, repeatable")
	fs.Var(&bankAccount, "bank-account", "Bank account the refund is paid from")
	fs.StringVar(&cmd.RefundMethod, "method", "", "Refund method: original, cash, check, bank_transfer, credit_card, credit_note (required)")
	fs.StringVar(&cmd.Reason, "reason", "", "Reason for the refund (required)")
	fs.StringVar(&cmd.ReferenceNumber, "reference", "", "External reference number")
	fs.StringVar(&cmd.CheckNumber, "check-number", "", "Check number for check refunds")
	fs.StringVar(&cmd.Notes, "notes", "", "Notes")

	if err := parse(fs, &common, args); err != nil {
		return reconciliation.CommandContext{}, cmd, err
	}

	cmd.PaymentID = common.payment.id
	cmd.RefundAmount = amount.d
	cmd.RefundDate = date.t
	if bankAccount.set {
		id := bankAccount.id
		cmd.BankAccountID = &id
	}
	for _, ia := range invoices {
		cmd.Allocations = append(cmd.Allocations, reconciliation.RefundAllocationInput{
			InvoiceID: ia.InvoiceID,
			Amount:    ia.Amount,
		})
	}
	return common.commandContext(), cmd, nil
}

func parseSummary(args []string, output io.Writer) (reconciliation.CommandContext, uuid.UUID, error) {
	var common commonFlags
	fs := newFlagSet("summary", output)
	common.register(fs)
	if err := parse(fs, &common, args); err != nil {
		return reconciliation.CommandContext{}, uuid.Nil, err
	}
	return common.commandContext(), common.payment.id, nil
}

// isHelp reports whether parsing stopped because -h was given
func isHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
