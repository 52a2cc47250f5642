/*
receipt.go - Period-scoped sequential receipt numbers

FORMAT:
  RC-YYYYMM-NNNN  inbound payments
  PY-YYYYMM-NNNN  outbound payments

  The period comes from the payment date, the sequence is 4-digit
  zero-padded and restarts every month.

ALGORITHM:
  1. Prefix from payment date
  2. Look at the most recently inserted receipt with that prefix
     (insertion order, not a numeric scan of every row)
  3. Parse its suffix (malformed suffix = 0) and add one
  4. While the candidate already exists, add one again

  Step 4 covers concurrent writers that slipped in between 2 and the
  insert; it guarantees uniqueness but can leave gaps.

IDEMPOTENCE:
  A payment that already carries a receipt number keeps it. Updates never
  regenerate: moving a payment to another month keeps its original number.
*/
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type PaymentKind string

const (
	KindInbound  PaymentKind = "inbound"
	KindOutbound PaymentKind = "outbound"
)

func (k PaymentKind) receiptCode() string {
	if k == KindOutbound {
		return "PY"
	}
	return "RC"
}

// ReceiptPrefix returns e.g. "RC-202401-" for an inbound payment dated January 2024.
func ReceiptPrefix(kind PaymentKind, date Date) string {
	return fmt.Sprintf("%s-%s-", kind.receiptCode(), date.Time.Format("200601"))
}

// ParseReceiptSequence extracts the sequence after the last '-'.
// Returns 0 when the suffix isn't a number.
func ParseReceiptSequence(number string) int {
	i := strings.LastIndex(number, "-")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(number[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FormatReceiptNumber joins prefix and a zero-padded sequence.
func FormatReceiptNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}

// NextReceiptNumber computes the next free receipt number for kind and date.
func NextReceiptNumber(ctx context.Context, seq ReceiptSequence, kind PaymentKind, date Date) (string, error) {
	prefix := ReceiptPrefix(kind, date)

	last, ok, err := seq.LastReceiptNumber(ctx, kind, prefix)
	if err != nil {
		return "", fmt.Errorf("read last receipt number: %w", err)
	}
	n := 0
	if ok {
		n = ParseReceiptSequence(last)
	}

	for {
		n++
		candidate := FormatReceiptNumber(prefix, n)
		exists, err := seq.ReceiptNumberExists(ctx, kind, candidate)
		if err != nil {
			return "", fmt.Errorf("check receipt number: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
}

// AssignReceipt returns current unchanged when set, otherwise the next number.
func AssignReceipt(ctx context.Context, seq ReceiptSequence, kind PaymentKind, date Date, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	return NextReceiptNumber(ctx, seq, kind, date)
}
