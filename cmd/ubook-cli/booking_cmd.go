package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"time"

	"ubook/client"
	"ubook/native/booking"
)

var newNodeClient = func() client.NodeClient {
	return client.NewRPCNodeClient(rpcEndpoint, rpcToken)
}

const commandTimeout = 15 * time.Second

func runBookingCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "create":
		return runCreate(args[1:], stdout, stderr)
	case "deposit":
		return runDeposit(args[1:], stdout, stderr)
	case "confirm":
		return runTransition(args[1:], stdout, stderr, "confirm")
	case "complete":
		return runTransition(args[1:], stdout, stderr, "complete")
	case "cancel":
		return runCancel(args[1:], stdout, stderr)
	case "get":
		return runGet(args[1:], stdout, stderr)
	case "list":
		return runList(args[1:], stdout, stderr)
	case "next-id":
		return runNextID(stdout, stderr)
	case "fee":
		return runFee(stdout, stderr)
	case "catalog":
		return runCatalog(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: ubook-cli [--rpc URL] <command>

Commands:
  create    --guest ADDR --accommodation ID --check-in UNIX --check-out UNIX
  deposit   --id N --from ADDR --value AMOUNT
  confirm   --id N --caller ADDR
  complete  --id N --caller ADDR
  cancel    --id N --caller ADDR [--reason TEXT]
  get       --id N
  list      --guest ADDR
  next-id
  fee
  catalog   [--id ID]
  events    [--prefix P] [--after SEQ] [--limit N]

Amounts accept whole CELO ("5"), decimals ("0.25") or base-unit
shorthand ("5e18").`
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func printJSON(stdout io.Writer, v interface{}) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		guest         string
		accommodation string
		checkIn       int64
		checkOut      int64
	)
	fs.StringVar(&guest, "guest", "", "guest address")
	fs.StringVar(&accommodation, "accommodation", "", "accommodation identifier")
	fs.Int64Var(&checkIn, "check-in", 0, "check-in unix timestamp")
	fs.Int64Var(&checkOut, "check-out", 0, "check-out unix timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if guest == "" {
		return printError(stderr, "--guest is required")
	}
	if accommodation == "" {
		return printError(stderr, "--accommodation is required")
	}
	if checkIn == 0 || checkOut == 0 {
		return printError(stderr, "--check-in and --check-out are required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	node := newNodeClient()
	ctrl, err := client.NewMemoryController(node, guest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	out, err := ctrl.RequestCreate(ctx, guest, accommodation, checkIn, checkOut)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printOutcome(stdout, stderr, out)
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		id    uint64
		from  string
		value string
	)
	fs.Uint64Var(&id, "id", 0, "booking identifier")
	fs.StringVar(&from, "from", "", "guest address")
	fs.StringVar(&value, "value", "", "deposit amount")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}
	if from == "" {
		return printError(stderr, "--from is required")
	}
	amount, err := booking.ParseAmount(value)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--value: %v", err))
	}

	ctx, cancel := commandContext()
	defer cancel()
	txHash, err := newNodeClient().BookingDeposit(ctx, id, from, amount.String())
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, map[string]string{"txHash": txHash})
}

func runTransition(args []string, stdout, stderr io.Writer, verb string) int {
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		id     uint64
		caller string
	)
	fs.Uint64Var(&id, "id", 0, "booking identifier")
	fs.StringVar(&caller, "caller", "", "caller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}
	if caller == "" {
		return printError(stderr, "--caller is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	node := newNodeClient()
	var (
		txHash string
		err    error
	)
	switch verb {
	case "confirm":
		txHash, err = node.BookingConfirm(ctx, id, caller)
	case "complete":
		txHash, err = node.BookingComplete(ctx, id, caller)
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, map[string]string{"txHash": txHash})
}

func runCancel(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		id     uint64
		caller string
		reason string
	)
	fs.Uint64Var(&id, "id", 0, "booking identifier")
	fs.StringVar(&caller, "caller", "", "caller address")
	fs.StringVar(&reason, "reason", "", "cancellation reason")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}
	if caller == "" {
		return printError(stderr, "--caller is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	txHash, err := newNodeClient().BookingCancel(ctx, id, caller, reason)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, map[string]string{"txHash": txHash})
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "booking identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		return printError(stderr, "--id is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	state, err := newNodeClient().BookingGet(ctx, id)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, formatBookingState(state))
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var guest string
	fs.StringVar(&guest, "guest", "", "guest address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if guest == "" {
		return printError(stderr, "--guest is required")
	}

	ctx, cancel := commandContext()
	defer cancel()
	states, err := newNodeClient().BookingsByGuest(ctx, guest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(states))
	for i := range states {
		out = append(out, formatBookingState(&states[i]))
	}
	return printJSON(stdout, out)
}

func runNextID(stdout, stderr io.Writer) int {
	ctx, cancel := commandContext()
	defer cancel()
	next, err := newNodeClient().NextBookingID(ctx)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, map[string]uint64{"nextBookingId": next})
}

func runFee(stdout, stderr io.Writer) int {
	ctx, cancel := commandContext()
	defer cancel()
	feeBps, err := newNodeClient().PlatformFeeBps(ctx)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, map[string]uint32{"feeBps": feeBps})
}

func runCatalog(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var id string
	fs.StringVar(&id, "id", "", "accommodation identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := commandContext()
	defer cancel()
	node := newNodeClient()
	if id != "" {
		entry, err := node.CatalogGet(ctx, id)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, entry)
	}
	entries, err := node.CatalogList(ctx)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, entries)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		prefix string
		after  int64
		limit  int
	)
	fs.StringVar(&prefix, "prefix", "", "event type prefix filter")
	fs.Int64Var(&after, "after", 0, "return events after this sequence")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := commandContext()
	defer cancel()
	recorded, err := newNodeClient().FetchEvents(ctx, prefix, after, limit)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, recorded)
}

func printOutcome(stdout, stderr io.Writer, out *client.Outcome) int {
	switch out.Status {
	case client.OutcomeConfirmed:
		result := map[string]interface{}{"status": out.Status.String(), "txHash": out.TxHash}
		if out.Booking != nil {
			result["booking"] = formatBookingState(out.Booking)
		}
		return printJSON(stdout, result)
	case client.OutcomeUnknown:
		fmt.Fprintf(stderr, "Warning: outcome unknown, pending ref %s: %s\n", out.PendingRef, out.Reason)
		return 2
	default:
		return printError(stderr, out.Reason)
	}
}

// formatBookingState adds human-readable CELO amounts next to the base units.
func formatBookingState(state *client.BookingState) map[string]interface{} {
	out := map[string]interface{}{
		"id":              state.ID,
		"guest":           state.Guest,
		"accommodationId": state.AccommodationID,
		"checkIn":         state.CheckIn,
		"checkOut":        state.CheckOut,
		"totalAmount":     state.TotalAmount,
		"depositedAmount": state.DepositedAmount,
		"status":          state.Status,
		"isCompleted":     state.IsCompleted,
		"createdAt":       state.CreatedAt,
	}
	if state.CancelReason != "" {
		out["cancelReason"] = state.CancelReason
	}
	// Node amounts are decimal base-unit strings, not CELO figures.
	if total, ok := new(big.Int).SetString(state.TotalAmount, 10); ok {
		out["totalCelo"] = booking.FormatAmount(total)
	}
	if deposited, ok := new(big.Int).SetString(state.DepositedAmount, 10); ok {
		out["depositedCelo"] = booking.FormatAmount(deposited)
	}
	return out
}
