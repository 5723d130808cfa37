// Package broadcast fans a message out to a recipient list over the
// live protocol connection, isolating per-recipient failures.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/wabcast/internal/audit"
	"github.com/ashureev/wabcast/internal/domain"
	"github.com/ashureev/wabcast/internal/whatsapp"
	"github.com/containerd/errdefs"
)

// Sender is the slice of the connection manager the dispatcher needs.
type Sender interface {
	IsConnected() bool
	SendText(ctx context.Context, jid, text string) error
}

// RecipientResult is the outcome of one recipient's send.
type RecipientResult struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
}

// Result is the aggregate outcome of one broadcast.
type Result struct {
	SentTo     int               `json:"sentTo"`
	Recipients []RecipientResult `json:"recipients"`
}

// Dispatcher sends broadcasts and records each attempt in the audit log.
type Dispatcher struct {
	sender      Sender
	log         *audit.Log
	sendTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. sendTimeout bounds each
// per-recipient send.
func NewDispatcher(sender Sender, log *audit.Log, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		log:         log,
		sendTimeout: sendTimeout,
	}
}

// Normalize converts a bare number into the protocol's fully qualified
// address form. Already-qualified addresses pass through unchanged.
func Normalize(number string) string {
	if strings.Contains(number, whatsapp.AddressSuffix) {
		return number
	}
	return number + whatsapp.AddressSuffix
}

// Broadcast sends message to every recipient sequentially and
// independently: a failure on one recipient does not abort the rest.
// Exactly one audit entry is appended per accepted call; the aggregate
// outcome is "failed" iff any recipient failed, in which case an error
// is also returned to the caller alongside the per-recipient detail.
//
// Precondition failures (no live connection, empty input) reject the
// request before any send and produce no audit entry.
func (d *Dispatcher) Broadcast(ctx context.Context, email, message string, numbers []string) (*Result, error) {
	if !d.sender.IsConnected() {
		return nil, fmt.Errorf("protocol connection not live: %w", errdefs.ErrUnavailable)
	}
	if message == "" || len(numbers) == 0 {
		return nil, fmt.Errorf("message and numbers are required: %w", errdefs.ErrInvalidArgument)
	}

	result := &Result{Recipients: make([]RecipientResult, 0, len(numbers))}
	failed := 0

	for _, number := range numbers {
		jid := Normalize(number)
		err := d.sendOne(ctx, jid, message)
		if err != nil {
			failed++
			slog.Warn("Broadcast send failed", "email", email, "to", jid, "error", err)
			result.Recipients = append(result.Recipients, RecipientResult{Address: jid, Error: err.Error()})
			continue
		}
		result.SentTo++
		result.Recipients = append(result.Recipients, RecipientResult{Address: jid})
	}

	outcome := domain.OutcomeSuccess
	var deliveryErr error
	if failed > 0 {
		outcome = domain.OutcomeFailed
		deliveryErr = fmt.Errorf("broadcast delivered to %d of %d recipients: %w",
			result.SentTo, len(numbers), errdefs.ErrInternal)
	}

	// An append failure must not mask the delivery failure, or vice versa.
	if err := d.log.Append(ctx, email, message, numbers, outcome); err != nil {
		return result, errors.Join(fmt.Errorf("record broadcast: %w", err), deliveryErr)
	}
	return result, deliveryErr
}

func (d *Dispatcher) sendOne(ctx context.Context, jid, message string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.SendText(sendCtx, jid, message)
}
