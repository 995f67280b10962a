package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// MemoryBackend keeps the ledger in process memory. Used for tests and local
// runs; every method is a single critical section.
type MemoryBackend struct {
	mu           sync.Mutex
	nextRef      RowRef
	rows         map[RowRef]*Entry
	byKey        map[string]RowRef
	byPrimarySub map[int64]RowRef
	pending      map[RowRef]PendingRow
	bySecondary  map[int64]RowRef
	// every secondary submission id ever written to a primary row
	bySecondaryApplied map[int64]RowRef
	now                func() time.Time
}

// NewMemoryBackend creates an empty in-memory ledger
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		rows:         make(map[RowRef]*Entry),
		byKey:        make(map[string]RowRef),
		byPrimarySub: make(map[int64]RowRef),
		pending:      make(map[RowRef]PendingRow),
		bySecondary:  make(map[int64]RowRef),
		now:          time.Now,

		bySecondaryApplied: make(map[int64]RowRef),
	}
}

func (m *MemoryBackend) FindByKey(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(m.rows[ref]), nil
}

func (m *MemoryBackend) InsertPrimary(ctx context.Context, rec models.SubmissionRecord) (RowRef, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, ok := m.byPrimarySub[rec.ExternalSubmissionID]; ok {
		return ref, ErrDuplicateSubmission
	}
	if ref, ok := m.byKey[rec.Key]; ok {
		return ref, ErrKeyExists
	}

	m.nextRef++
	e := &Entry{
		Ref:                  m.nextRef,
		Key:                  rec.Key,
		UnitName:             rec.UnitName,
		Supplier:             rec.Supplier,
		PrimarySubmitter:     rec.SubmitterName,
		PrimarySubmissionID:  rec.ExternalSubmissionID,
		PrimaryAttachmentRef: rec.AttachmentRef,
		Status:               "Waiting",
		UpdatedAt:            m.now(),
	}
	e.PrimaryValue.Set(&rec.Value)

	m.rows[e.Ref] = e
	m.byKey[e.Key] = e.Ref
	m.byPrimarySub[rec.ExternalSubmissionID] = e.Ref
	return e.Ref, nil
}

func (m *MemoryBackend) InsertPending(ctx context.Context, rec models.SubmissionRecord, receivedAt time.Time) (RowRef, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, ok := m.bySecondary[rec.ExternalSubmissionID]; ok {
		return ref, ErrDuplicateSubmission
	}

	m.nextRef++
	p := PendingRow{
		Ref:          m.nextRef,
		Key:          rec.Key,
		UnitName:     rec.UnitName,
		Submitter:    rec.SubmitterName,
		EntryNumber:  rec.EntryNumber,
		SubmissionID: rec.ExternalSubmissionID,
		ReceivedAt:   receivedAt,
	}
	p.Value.Set(&rec.Value)

	m.pending[p.Ref] = p
	m.bySecondary[rec.ExternalSubmissionID] = p.Ref
	return p.Ref, nil
}

func (m *MemoryBackend) UpdateSecondary(ctx context.Context, ref RowRef, u SecondaryUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.rows[ref]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.bySecondaryApplied[u.SubmissionID]; ok {
		return ErrDuplicateSubmission
	}
	m.bySecondaryApplied[u.SubmissionID] = ref

	e.SecondarySubmitter = u.Submitter
	e.SecondaryValue.Set(&u.Value)
	e.SecondarySubmissionID = u.SubmissionID
	e.SecondaryEntryNumber = u.EntryNumber
	e.Status = u.Status
	e.Delta.Set(&u.Delta)
	e.UpdatedAt = m.now()
	return nil
}

func (m *MemoryBackend) ListPending(ctx context.Context, limit int) ([]PendingRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PendingRow, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref > out[j].Ref })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }

func copyEntry(e *Entry) *Entry {
	c := *e
	c.PrimaryValue, c.SecondaryValue, c.Delta = apd.Decimal{}, apd.Decimal{}, apd.Decimal{}
	c.PrimaryValue.Set(&e.PrimaryValue)
	c.SecondaryValue.Set(&e.SecondaryValue)
	c.Delta.Set(&e.Delta)
	return &c
}

var _ Backend = (*MemoryBackend)(nil)
