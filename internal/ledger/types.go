package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

var (
	// ErrNotFound means no primary row exists for the key. It is a branch, not a failure.
	ErrNotFound = errors.New("ledger row not found")
	// ErrDuplicateSubmission means the submission id was already applied
	ErrDuplicateSubmission = errors.New("submission already recorded")
	// ErrKeyExists means a different primary submission already owns the key
	ErrKeyExists = errors.New("invoice already registered by another submission")
	// ErrLedgerUnavailable wraps every backend failure
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// RowRef identifies a row in the ledger or in the pending tab
type RowRef int64

// Entry is a primary row, possibly already reconciled
type Entry struct {
	Ref                   RowRef
	Key                   string
	UnitName              string
	Supplier              string
	PrimarySubmitter      string
	PrimaryValue          apd.Decimal
	PrimarySubmissionID   int64
	PrimaryAttachmentRef  string
	SecondarySubmitter    string
	SecondaryValue        apd.Decimal
	SecondarySubmissionID int64 // 0 until a secondary is applied
	SecondaryEntryNumber  string
	Status                string
	Delta                 apd.Decimal
	UpdatedAt             time.Time
}

// Reconciled reports whether a secondary side has been written
func (e *Entry) Reconciled() bool {
	return e.SecondarySubmissionID != 0
}

// PrimaryRecord rebuilds the primary side as a SubmissionRecord
func (e *Entry) PrimaryRecord() models.SubmissionRecord {
	rec := models.SubmissionRecord{
		Key:                  e.Key,
		Role:                 models.RolePrimary,
		SubmitterName:        e.PrimarySubmitter,
		UnitName:             e.UnitName,
		Supplier:             e.Supplier,
		ExternalSubmissionID: e.PrimarySubmissionID,
		AttachmentRef:        e.PrimaryAttachmentRef,
	}
	rec.Value.Set(&e.PrimaryValue)
	return rec
}

// PendingRow is a secondary submission whose invoice had no primary row
type PendingRow struct {
	Ref          RowRef
	Key          string
	UnitName     string
	Submitter    string
	Value        apd.Decimal
	EntryNumber  string
	SubmissionID int64
	ReceivedAt   time.Time
}

// SecondaryUpdate is written to a primary row by Finalize
type SecondaryUpdate struct {
	Submitter    string
	Value        apd.Decimal
	SubmissionID int64
	EntryNumber  string
	Status       string
	Delta        apd.Decimal
}

// Backend is the tabular ledger. Implementations must make every method
// atomic per row; the service holds no lock across these calls.
type Backend interface {
	// FindByKey returns ErrNotFound when no primary row exists
	FindByKey(ctx context.Context, key string) (*Entry, error)
	// InsertPrimary appends a primary row. A repeated submission id returns the
	// existing ref with ErrDuplicateSubmission; another owner of the key returns ErrKeyExists.
	InsertPrimary(ctx context.Context, rec models.SubmissionRecord) (RowRef, error)
	// InsertPending appends to the pending tab; a repeated submission id returns
	// the existing ref with ErrDuplicateSubmission.
	InsertPending(ctx context.Context, rec models.SubmissionRecord, receivedAt time.Time) (RowRef, error)
	// UpdateSecondary writes u unless u.SubmissionID is already on the row,
	// in which case it returns ErrDuplicateSubmission.
	UpdateSecondary(ctx context.Context, ref RowRef, u SecondaryUpdate) error
	// ListPending returns the newest pending rows first
	ListPending(ctx context.Context, limit int) ([]PendingRow, error)
	Close() error
}
