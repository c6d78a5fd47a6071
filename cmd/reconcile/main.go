// Command reconcile runs payment reconciliation commands (allocate, void,
// refund) and prints payment summaries against the ledger database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitRejected = 3 // validation or policy rejection, never worth retrying
)

// action runs one parsed command against the service
type action func(ctx context.Context, svc *reconciliation.Service) (any, error)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		configPath string
		timeout    time.Duration
	)
	global := newFlagSet("reconcile", stderr)
	global.StringVar(&configPath, "config", "", "Config file (default: search ., ./config, /etc/reconcile)")
	global.DurationVar(&timeout, "timeout", 30*time.Second, "Deadline for the whole command")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		if isHelp(err) {
			return exitOK
		}
		return exitUsage
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return exitUsage
	}

	subcommand, subArgs := global.Arg(0), global.Args()[1:]
	cc, act, err := parseCommand(subcommand, subArgs, stderr)
	if err != nil {
		if isHelp(err) {
			return exitOK
		}
		fmt.Fprintf(stderr, "reconcile %s: %v\n", subcommand, err)
		return exitUsage
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(shutdownCtx)
	}()

	ctx = logger.WithContext(ctx, a.log)
	ctx = logger.WithCommandID(ctx, uuid.NewString())
	ctx = logger.WithCompanyID(ctx, cc.CompanyID.String())
	ctx = logger.WithActorID(ctx, cc.ActorID.String())

	return execute(ctx, subcommand, act, a.service, stdout, stderr)
}

// execute runs act under the root span of the invocation and maps its
// outcome to an exit code
func execute(ctx context.Context, subcommand string, act action, svc *reconciliation.Service, stdout, stderr io.Writer) int {
	ctx, span := telemetry.StartSpan(ctx, "reconcile."+subcommand,
		"command_id", logger.CommandID(ctx),
	)
	defer span.End()

	result, err := act(ctx, svc)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.L(ctx).Debug("Command failed", zap.String("command", subcommand), zap.Error(err))
		writeError(stderr, err)
		if shared.IsValidationError(err) || shared.IsPolicyError(err) {
			return exitRejected
		}
		return exitFailure
	}

	if err := writeJSON(stdout, result); err != nil {
		telemetry.RecordError(span, err)
		logger.L(ctx).Error("Failed to write result", zap.Error(err))
		return exitFailure
	}
	telemetry.SetOK(span)
	return exitOK
}

// parseCommand turns a subcommand and its flags into a service call
func parseCommand(name string, args []string, output io.Writer) (reconciliation.CommandContext, action, error) {
	switch name {
	case "allocate":
		cc, cmd, err := parseAllocate(args, output)
		return cc, func(ctx context.Context, svc *reconciliation.Service) (any, error) {
			return svc.AllocatePayment(ctx, cc, cmd)
		}, err

	case "void":
		cc, cmd, err := parseVoid(args, output)
		return cc, func(ctx context.Context, svc *reconciliation.Service) (any, error) {
			return svc.VoidPayment(ctx, cc, cmd)
		}, err

	case "refund":
		cc, cmd, err := parseRefund(args, output)
		return cc, func(ctx context.Context, svc *reconciliation.Service) (any, error) {
			return svc.RefundPayment(ctx, cc, cmd)
		}, err

	case "summary":
		cc, paymentID, err := parseSummary(args, output)
		return cc, func(ctx context.Context, svc *reconciliation.Service) (any, error) {
			return svc.GetPaymentSummary(ctx, cc, paymentID)
		}, err

	default:
		printUsage(output)
		return reconciliation.CommandContext{}, nil, fmt.Errorf("unknown command %q", name)
	}
}

// errorOutput is the JSON written to stderr when a command fails
type errorOutput struct {
	Error      string             `json:"error"`
	Class      string             `json:"class"`
	Violations []shared.Violation `json:"violations,omitempty"`
}

func writeError(w io.Writer, err error) {
	out := errorOutput{Error: err.Error(), Class: shared.ErrorClass(err)}
	if ve, ok := shared.AsValidationError(err); ok {
		out.Violations = ve.Violations
	}
	_ = writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Payment Reconciliation

Usage:
  reconcile [-config file] [-timeout d] <command> [flags]

Commands:
  allocate   Apply a payment to invoices (manual entries or -auto with -method)
  void       Reverse a payment and every allocation made from it
  refund     Return allocated money to the customer
  summary    Print a payment's allocations, refunds and remaining amount

Common flags:
  -company uuid   Company the command runs in
  -actor uuid     User the command runs as
  -payment uuid   Payment to act on
  -key string     Idempotency key

Run "reconcile <command> -h" for command flags.

Exit status is 0 on success, 2 on usage errors, 3 when the command was
rejected by validation or policy, and 1 otherwise.`)
}
