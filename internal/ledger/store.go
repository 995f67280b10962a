// Package ledger is the reconciliation store: the key to primary-row
// association kept in an external tabular ledger, with the comparison applied
// when the secondary side is written.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/matching"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// Store wraps a Backend with per-call timeouts, the comparison rule and
// error classification.
type Store struct {
	backend Backend
	cmp     *matching.Comparator
	timeout time.Duration
}

// NewStore creates a Store. timeout bounds every backend call.
func NewStore(b Backend, cmp *matching.Comparator, timeout time.Duration) *Store {
	if cmp == nil {
		cmp = matching.Exact()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{backend: b, cmp: cmp, timeout: timeout}
}

// FindByKey looks up the primary row for key
func (s *Store) FindByKey(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	e, err := s.backend.FindByKey(ctx, key)
	if err != nil {
		return nil, classify(err, "find %q", key)
	}
	return e, nil
}

// CreatePending stores a secondary submission that has no primary row
func (s *Store) CreatePending(ctx context.Context, rec models.SubmissionRecord, receivedAt time.Time) (RowRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := s.backend.InsertPending(ctx, rec, receivedAt)
	if err != nil {
		return ref, classify(err, "create pending %q", rec.Key)
	}
	return ref, nil
}

// Finalize compares the secondary value against the primary row and writes
// both sides. A submission id already applied to the row yields
// ErrDuplicateSubmission and no write.
func (s *Store) Finalize(ctx context.Context, e *Entry, secondary models.SubmissionRecord) (matching.Result, error) {
	if e.SecondarySubmissionID != 0 && e.SecondarySubmissionID == secondary.ExternalSubmissionID {
		return matching.Result{}, ErrDuplicateSubmission
	}

	res, err := s.cmp.Compare(&e.PrimaryValue, &secondary.Value)
	if err != nil {
		return matching.Result{}, fmt.Errorf("finalize %q: %w", e.Key, err)
	}

	u := SecondaryUpdate{
		Submitter:    secondary.SubmitterName,
		SubmissionID: secondary.ExternalSubmissionID,
		EntryNumber:  secondary.EntryNumber,
		Status:       res.Kind.LedgerStatus(),
	}
	u.Value.Set(&secondary.Value)
	u.Delta.Set(&res.Delta)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.UpdateSecondary(ctx, e.Ref, u); err != nil {
		return matching.Result{}, classify(err, "finalize %q", e.Key)
	}
	return res, nil
}

// RegisterPrimary appends the primary side of an invoice
func (s *Store) RegisterPrimary(ctx context.Context, rec models.SubmissionRecord) (RowRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ref, err := s.backend.InsertPrimary(ctx, rec)
	if err != nil {
		return ref, classify(err, "register primary %q", rec.Key)
	}
	return ref, nil
}

// ListPending returns up to limit pending rows, newest first
func (s *Store) ListPending(ctx context.Context, limit int) ([]PendingRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.backend.ListPending(ctx, limit)
	if err != nil {
		return nil, classify(err, "list pending")
	}
	return rows, nil
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// classify passes branch errors through and wraps everything else in
// ErrLedgerUnavailable.
func classify(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateSubmission), errors.Is(err, ErrKeyExists):
		return err
	default:
		return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, fmt.Sprintf(format, args...), err)
	}
}
