// Package notifier delivers best-effort downstream notifications about
// freshly recorded deposits.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suspectuso/deposit-verifier/internal/address"
	"github.com/suspectuso/deposit-verifier/internal/deposit"
)

// Notification describes one recorded deposit.
type Notification struct {
	RecordID    string
	DepositID   string
	InvestorKey string
	USDTAmount  string
	DCTAmount   string
	TonTxHash   string
	Strategy    string
}

// FromRecord builds a Notification for a stored record.
func FromRecord(id string, rec deposit.Record) Notification {
	return Notification{
		RecordID:    id,
		DepositID:   rec.Event.DepositID,
		InvestorKey: rec.Event.InvestorKey,
		USDTAmount:  rec.Event.USDTAmount,
		DCTAmount:   rec.Event.DCTAmount,
		TonTxHash:   rec.Event.TonTxHash,
		Strategy:    rec.Strategy,
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Multi fans a notification out to every target. All targets are tried;
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func formatMessage(n Notification) string {
	friendly := address.Friendly(n.InvestorKey)
	investorLink := fmt.Sprintf("<a href='https://tonviewer.com/%s'>%s</a>",
		friendly, address.Short(friendly, 4))

	lines := []string{
		"<b>✅ Deposit verified</b>",
		"",
		fmt.Sprintf("%s USDT → %s DCT", n.USDTAmount, n.DCTAmount),
		"",
		fmt.Sprintf("Investor: %s", investorLink),
		fmt.Sprintf("Deposit: <code>%s</code>", n.DepositID),
		fmt.Sprintf("Tx: <a href='https://tonviewer.com/transaction/%s'>%s</a>",
			n.TonTxHash, shortHash(n.TonTxHash)),
	}
	if n.Strategy != "" {
		lines = append(lines, fmt.Sprintf("<i>evidence: %s</i>", n.Strategy))
	}
	return strings.Join(lines, "\n")
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:6] + "..." + h[len(h)-6:]
}
