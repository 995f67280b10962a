// Package alert delivers reconciliation alerts to the operators' chat channel.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/apd/v3"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

var (
	// ErrSinkUnavailable covers network failures, timeouts and 5xx answers
	ErrSinkUnavailable = errors.New("alert sink unavailable")
	// ErrSinkRejected means the sink refused the payload (4xx)
	ErrSinkRejected = errors.New("alert rejected by sink")
)

// Kind selects the alert template
type Kind string

const (
	KindMismatch  Kind = "mismatch"  // both sides reported, values differ
	KindUnmatched Kind = "unmatched" // secondary side has no primary row
)

// Alert is the structured payload handed to a Dispatcher
type Alert struct {
	Kind Kind
	// ID correlates the chat message with logs. Generated when empty.
	ID            string
	InvoiceNumber string
	UnitName      string

	Supplier         string
	PrimarySubmitter string
	PrimaryValue     apd.Decimal
	AttachmentRef    string

	SecondarySubmitter string
	SecondaryValue     apd.Decimal
	EntryNumber        string
	ReceivedAt         time.Time

	Delta apd.Decimal
}

// Dispatcher sends an alert. It returns ErrSinkUnavailable or ErrSinkRejected
// (possibly wrapped) on failure and never retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// LogDispatcher only logs alerts. Used when no webhook is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, a Alert) error {
	d.logger.Warn("reconciliation alert",
		zap.String("kind", string(a.Kind)),
		zap.String("invoice", a.InvoiceNumber),
		zap.String("unit", a.UnitName),
		zap.String("primary_value", models.FormatMoney(&a.PrimaryValue)),
		zap.String("secondary_value", models.FormatMoney(&a.SecondaryValue)),
		zap.String("delta", models.FormatMoney(&a.Delta)))
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
