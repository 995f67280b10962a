package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/alert"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/evaluation"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/extract"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/ledger"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/matching"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/metrics"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

var (
	// ErrValidation is a client-caused failure: no outcome, no event
	ErrValidation = errors.New("invalid submission")
	// ErrUnavailable means the ledger or the evaluation platform failed before
	// an outcome was determined
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrConflict means another primary submission already owns the invoice
	ErrConflict = errors.New("invoice registered by another submission")
)

// Options holds the tunables of a Service
type Options struct {
	// Evaluations of any other checklist are ignored. 0 accepts every checklist.
	PrimaryChecklistID   int64
	SecondaryChecklistID int64
	// DispatchTimeout bounds one alert delivery
	DispatchTimeout time.Duration
	Now             func() time.Time
}

// Outcome is the result of one secondary submission
type Outcome struct {
	Kind      matching.Kind
	Key       string
	UnitName  string
	Primary   *models.SubmissionRecord // nil when no primary row exists
	Secondary models.SubmissionRecord
	Delta     apd.Decimal
	RowRef    ledger.RowRef
	// PendingRow is true when RowRef points into the pending tab
	PendingRow bool

	AlertDispatched bool
	DispatchErr     error
	Duplicate       bool
	Ignored         bool
	ChecklistID     int64
	EventID         string
}

// Status is Kind, or DispatchFailed when the alert for it was not delivered
func (o *Outcome) Status() matching.Kind {
	if o.DispatchErr != nil {
		return matching.DispatchFailed
	}
	return o.Kind
}

// Registration is the result of one primary submission
type Registration struct {
	Key         string
	UnitName    string
	Record      models.SubmissionRecord
	RowRef      ledger.RowRef
	Duplicate   bool
	Ignored     bool
	ChecklistID int64
	EventID     string
}

// Service is the matching engine. It holds no per-key state; the ledger
// serializes concurrent submissions for the same invoice.
type Service struct {
	fetcher    evaluation.Fetcher
	extractor  *extract.Extractor
	store      *ledger.Store
	dispatcher alert.Dispatcher
	bus        *events.Bus
	metrics    *metrics.Metrics
	logger     *zap.Logger
	opts       Options
}

// NewService creates a Service. m may be nil.
func NewService(f evaluation.Fetcher, x *extract.Extractor, s *ledger.Store, d alert.Dispatcher, b *events.Bus, m *metrics.Metrics, l *zap.Logger, opts Options) *Service {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		fetcher:    f,
		extractor:  x,
		store:      s,
		dispatcher: d,
		bus:        b,
		metrics:    m,
		logger:     l,
		opts:       opts,
	}
}

// SubmitSecondary reconciles the trainee submission behind evaluationID
// against the warehouse row for the same invoice.
func (s *Service) SubmitSecondary(ctx context.Context, evaluationID int64) (*Outcome, error) {
	start := s.opts.Now()

	rec, checklistID, ok, err := s.fetch(ctx, evaluationID, models.RoleSecondary)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("ignoring evaluation of another checklist",
			zap.Int64("evaluation_id", evaluationID), zap.Int64("checklist_id", checklistID))
		return &Outcome{Ignored: true, ChecklistID: checklistID}, nil
	}

	entry, err := s.store.FindByKey(ctx, rec.Key)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return s.unmatched(ctx, rec, start)
	case err != nil:
		return nil, s.ledgerFailure(err)
	}
	return s.finalize(ctx, entry, rec, start)
}

// unmatched stores the submission in the pending tab and raises an
// unresolved-invoice alert.
func (s *Service) unmatched(ctx context.Context, rec models.SubmissionRecord, start time.Time) (*Outcome, error) {
	receivedAt := s.opts.Now()
	ref, err := s.store.CreatePending(ctx, rec, receivedAt)

	out := &Outcome{
		Kind:        matching.UnmatchedKey,
		Key:         rec.Key,
		UnitName:    rec.UnitName,
		Secondary:   rec,
		RowRef:      ref,
		PendingRow:  true,
		ChecklistID: rec.ChecklistID,
	}
	switch {
	case errors.Is(err, ledger.ErrDuplicateSubmission):
		return s.duplicate(out, start), nil
	case err != nil:
		return nil, s.ledgerFailure(err)
	}

	a := alert.Alert{
		Kind:               alert.KindUnmatched,
		InvoiceNumber:      rec.Key,
		UnitName:           rec.UnitName,
		SecondarySubmitter: rec.SubmitterName,
		EntryNumber:        rec.EntryNumber,
		ReceivedAt:         receivedAt,
	}
	a.SecondaryValue.Set(&rec.Value)

	s.notify(ctx, out, a,
		"Invoice not found",
		fmt.Sprintf("Invoice %s is not in the ledger", rec.Key),
		fmt.Sprintf("Trainee: %s | Value: R$ %s", rec.SubmitterName, rec.ValueText()))
	s.finish(out, start)
	return out, nil
}

// finalize writes the secondary side onto the primary row and alerts on a
// mismatch.
func (s *Service) finalize(ctx context.Context, entry *ledger.Entry, rec models.SubmissionRecord, start time.Time) (*Outcome, error) {
	primary := entry.PrimaryRecord()
	out := &Outcome{
		Key:         rec.Key,
		UnitName:    entry.UnitName,
		Primary:     &primary,
		Secondary:   rec,
		RowRef:      entry.Ref,
		ChecklistID: rec.ChecklistID,
	}
	if out.UnitName == "" {
		out.UnitName = rec.UnitName
	}

	res, err := s.store.Finalize(ctx, entry, rec)
	switch {
	case errors.Is(err, ledger.ErrDuplicateSubmission):
		out.Kind = matching.KindFromLedgerStatus(entry.Status)
		out.Delta.Set(&entry.Delta)
		return s.duplicate(out, start), nil
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return nil, s.ledgerFailure(err)
	case err != nil:
		return nil, err
	}
	out.Kind = res.Kind
	out.Delta.Set(&res.Delta)

	if res.Kind == matching.Matched {
		ev := s.bus.Append(events.KindSuccess,
			"Values match",
			fmt.Sprintf("Invoice %s - values match", rec.Key),
			out.UnitName,
			fmt.Sprintf("Warehouse: %s | Trainee: %s | R$ %s", primary.SubmitterName, rec.SubmitterName, rec.ValueText()))
		out.EventID = ev.ID
		s.finish(out, start)
		return out, nil
	}

	a := alert.Alert{
		Kind:               alert.KindMismatch,
		InvoiceNumber:      rec.Key,
		UnitName:           out.UnitName,
		Supplier:           entry.Supplier,
		PrimarySubmitter:   primary.SubmitterName,
		AttachmentRef:      primary.AttachmentRef,
		SecondarySubmitter: rec.SubmitterName,
		EntryNumber:        rec.EntryNumber,
	}
	a.PrimaryValue.Set(&primary.Value)
	a.SecondaryValue.Set(&rec.Value)
	a.Delta.Set(&res.Delta)

	s.notify(ctx, out, a,
		"Values differ",
		fmt.Sprintf("Invoice %s - difference: R$ %s", rec.Key, models.FormatMoney(&res.Delta)),
		fmt.Sprintf("Warehouse: R$ %s | Trainee: R$ %s", primary.ValueText(), rec.ValueText()))
	s.finish(out, start)
	return out, nil
}

// SubmitPrimary registers the warehouse submission behind evaluationID as
// the primary row of its invoice. Pending secondary rows for the same
// invoice are left for manual resolution.
func (s *Service) SubmitPrimary(ctx context.Context, evaluationID int64) (*Registration, error) {
	start := s.opts.Now()

	rec, checklistID, ok, err := s.fetch(ctx, evaluationID, models.RolePrimary)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("ignoring evaluation of another checklist",
			zap.Int64("evaluation_id", evaluationID), zap.Int64("checklist_id", checklistID))
		return &Registration{Ignored: true, ChecklistID: checklistID}, nil
	}

	ref, err := s.store.RegisterPrimary(ctx, rec)
	reg := &Registration{
		Key:         rec.Key,
		UnitName:    rec.UnitName,
		Record:      rec,
		RowRef:      ref,
		ChecklistID: rec.ChecklistID,
	}

	var ev events.Event
	switch {
	case errors.Is(err, ledger.ErrDuplicateSubmission):
		reg.Duplicate = true
		ev = s.bus.Append(events.KindInfo,
			"Duplicate submission",
			fmt.Sprintf("Invoice %s - submission %d already recorded", rec.Key, rec.ExternalSubmissionID),
			rec.UnitName, "")
		s.metrics.RecordOutcome("duplicate", s.since(start))
	case errors.Is(err, ledger.ErrKeyExists):
		s.bus.Append(events.KindError,
			"Invoice already registered",
			fmt.Sprintf("Invoice %s already has a warehouse submission", rec.Key),
			rec.UnitName,
			fmt.Sprintf("Warehouse: %s | Submission: %d", rec.SubmitterName, rec.ExternalSubmissionID))
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	case err != nil:
		return nil, s.ledgerFailure(err)
	default:
		ev = s.bus.Append(events.KindInfo,
			"Primary registered",
			fmt.Sprintf("Invoice %s registered by %s", rec.Key, rec.SubmitterName),
			rec.UnitName,
			fmt.Sprintf("Supplier: %s | Value: R$ %s", rec.Supplier, rec.ValueText()))
		s.metrics.RecordOutcome("registered", s.since(start))
	}
	reg.EventID = ev.ID

	s.logger.Info("primary submission processed",
		zap.String("invoice", rec.Key),
		zap.Int64("submission_id", rec.ExternalSubmissionID),
		zap.Int64("row", int64(ref)),
		zap.Bool("duplicate", reg.Duplicate))
	return reg, nil
}

// fetch loads and extracts the submission. ok is false when the evaluation
// belongs to another checklist.
func (s *Service) fetch(ctx context.Context, id int64, role models.Role) (rec models.SubmissionRecord, checklistID int64, ok bool, err error) {
	if id <= 0 {
		return rec, 0, false, fmt.Errorf("%w: evaluationId must be a positive integer", ErrValidation)
	}

	ev, err := s.fetcher.Get(ctx, id)
	if err != nil {
		s.metrics.RecordCollaboratorFailure("evaluation")
		s.logger.Error("evaluation fetch failed", zap.Int64("evaluation_id", id), zap.Error(err))
		return rec, 0, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	want := s.opts.SecondaryChecklistID
	if role == models.RolePrimary {
		want = s.opts.PrimaryChecklistID
	}
	if want != 0 && ev.Checklist.ID != want {
		return rec, ev.Checklist.ID, false, nil
	}

	rec, err = s.extractor.Extract(ev, role)
	if err != nil {
		return rec, ev.Checklist.ID, false, fmt.Errorf("%w: evaluation %d: %w", ErrValidation, id, err)
	}
	return rec, ev.Checklist.ID, true, nil
}

// notify dispatches a and appends the single event describing the outcome:
// an alert event when delivered, an error event otherwise. Delivery is not
// tied to the caller's cancellation since the ledger is already written.
func (s *Service) notify(ctx context.Context, out *Outcome, a alert.Alert, title, message, details string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.DispatchTimeout)
	err := s.dispatcher.Dispatch(dctx, a)
	cancel()

	if err != nil {
		out.DispatchErr = err
		s.metrics.RecordDispatchFailure()
		s.logger.Error("alert dispatch failed",
			zap.String("invoice", out.Key),
			zap.String("outcome", string(out.Kind)),
			zap.Error(err))
		ev := s.bus.Append(events.KindError,
			"Alert dispatch failed",
			fmt.Sprintf("%s: %s", title, message),
			out.UnitName,
			fmt.Sprintf("%s | Alert not sent: %v", details, err))
		out.EventID = ev.ID
		return
	}

	out.AlertDispatched = true
	ev := s.bus.Append(events.KindAlert, title, message, out.UnitName, details+" | Alert sent")
	out.EventID = ev.ID
}

func (s *Service) duplicate(out *Outcome, start time.Time) *Outcome {
	out.Duplicate = true
	ev := s.bus.Append(events.KindInfo,
		"Duplicate submission",
		fmt.Sprintf("Invoice %s - submission %d already recorded", out.Key, out.Secondary.ExternalSubmissionID),
		out.UnitName, "")
	out.EventID = ev.ID

	s.logger.Info("duplicate secondary submission",
		zap.String("invoice", out.Key),
		zap.Int64("submission_id", out.Secondary.ExternalSubmissionID))
	s.metrics.RecordOutcome("duplicate", s.since(start))
	return out
}

func (s *Service) finish(out *Outcome, start time.Time) {
	s.metrics.RecordOutcome(string(out.Status()), s.since(start))
	s.logger.Info("secondary submission reconciled",
		zap.String("invoice", out.Key),
		zap.String("outcome", string(out.Status())),
		zap.String("delta", models.FormatMoney(&out.Delta)),
		zap.Int64("row", int64(out.RowRef)),
		zap.Bool("pending_row", out.PendingRow),
		zap.String("event_id", out.EventID))
}

func (s *Service) ledgerFailure(err error) error {
	s.metrics.RecordCollaboratorFailure("ledger")
	s.logger.Error("ledger call failed", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (s *Service) since(start time.Time) time.Duration {
	return s.opts.Now().Sub(start)
}
