package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/matching"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

type failingBackend struct {
	*MemoryBackend
	err error
}

func (f *failingBackend) FindByKey(ctx context.Context, key string) (*Entry, error) {
	return nil, f.err
}

func (f *failingBackend) UpdateSecondary(ctx context.Context, ref RowRef, u SecondaryUpdate) error {
	return f.err
}

func TestStore_FinalizeMatched(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil, time.Second)

	_, err := s.RegisterPrimary(ctx, primaryRecord("NF-100", "150.00", 11))
	require.NoError(t, err)
	e, err := s.FindByKey(ctx, "NF-100")
	require.NoError(t, err)

	res, err := s.Finalize(ctx, e, secondaryRecord("NF-100", "150", 12))
	require.NoError(t, err)
	assert.Equal(t, matching.Matched, res.Kind)
	assert.Equal(t, "0.00", models.FormatMoney(&res.Delta))

	e, err = s.FindByKey(ctx, "NF-100")
	require.NoError(t, err)
	assert.Equal(t, "OK", e.Status)
	assert.Equal(t, int64(12), e.SecondarySubmissionID)
}

func TestStore_FinalizeMismatched(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), matching.Exact(), time.Second)

	_, err := s.RegisterPrimary(ctx, primaryRecord("NF-300", "100.00", 31))
	require.NoError(t, err)
	e, err := s.FindByKey(ctx, "NF-300")
	require.NoError(t, err)

	res, err := s.Finalize(ctx, e, secondaryRecord("NF-300", "110.00", 32))
	require.NoError(t, err)
	assert.Equal(t, matching.Mismatched, res.Kind)
	assert.Equal(t, "10.00", models.FormatMoney(&res.Delta))

	e, err = s.FindByKey(ctx, "NF-300")
	require.NoError(t, err)
	assert.Equal(t, "Failed", e.Status)
}

func TestStore_FinalizeDuplicateOnLoadedEntry(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil, time.Second)

	_, err := s.RegisterPrimary(ctx, primaryRecord("NF-100", "150.00", 11))
	require.NoError(t, err)
	e, err := s.FindByKey(ctx, "NF-100")
	require.NoError(t, err)
	_, err = s.Finalize(ctx, e, secondaryRecord("NF-100", "150.00", 12))
	require.NoError(t, err)

	e, err = s.FindByKey(ctx, "NF-100")
	require.NoError(t, err)
	_, err = s.Finalize(ctx, e, secondaryRecord("NF-100", "150.00", 12))
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
}

func TestStore_FinalizeRedeliveryAfterLaterSubmission(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil, time.Second)

	_, err := s.RegisterPrimary(ctx, primaryRecord("NF-1", "100.00", 1))
	require.NoError(t, err)

	finalize := func(value string, sub int64) error {
		e, err := s.FindByKey(ctx, "NF-1")
		require.NoError(t, err)
		_, err = s.Finalize(ctx, e, secondaryRecord("NF-1", value, sub))
		return err
	}

	require.NoError(t, finalize("100.00", 10))
	require.NoError(t, finalize("90.00", 11))
	assert.ErrorIs(t, finalize("100.00", 10), ErrDuplicateSubmission)

	e, err := s.FindByKey(ctx, "NF-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), e.SecondarySubmissionID)
	assert.Equal(t, "Failed", e.Status)
}

func TestStore_ConcurrentDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil, time.Second)

	_, err := s.RegisterPrimary(ctx, primaryRecord("NF-100", "150.00", 11))
	require.NoError(t, err)

	const deliveries = 16
	var (
		wg         sync.WaitGroup
		applied    atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := s.FindByKey(ctx, "NF-100")
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Finalize(ctx, e, secondaryRecord("NF-100", "150.00", 12))
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, ErrDuplicateSubmission):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(deliveries-1), duplicates.Load())
}

func TestStore_CreatePendingDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), nil, time.Second)
	at := time.Now()

	ref, err := s.CreatePending(ctx, secondaryRecord("NF-200", "50.00", 21), at)
	require.NoError(t, err)
	again, err := s.CreatePending(ctx, secondaryRecord("NF-200", "50.00", 21), at)
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.Equal(t, ref, again)

	rows, err := s.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_BackendFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&failingBackend{MemoryBackend: NewMemoryBackend(), err: errors.New("connection reset")}, nil, time.Second)

	_, err := s.FindByKey(ctx, "NF-1")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.Finalize(ctx, &Entry{Ref: 1, Key: "NF-1"}, secondaryRecord("NF-1", "1.00", 2))
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestStore_BranchErrorsPassThrough(t *testing.T) {
	s := NewStore(&failingBackend{MemoryBackend: NewMemoryBackend(), err: ErrNotFound}, nil, time.Second)

	_, err := s.FindByKey(context.Background(), "NF-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrLedgerUnavailable)
}
