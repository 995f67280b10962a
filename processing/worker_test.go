package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/messaging/consumer"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/metrics"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
	core "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/core"
)

type fakeReconciler struct {
	mu        sync.Mutex
	calls     map[int64]int
	primaries []int64
	// failures[id] errors are returned, one per call, before succeeding
	failures map[int64][]error
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{calls: map[int64]int{}, failures: map[int64][]error{}}
}

func (f *fakeReconciler) next(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if errs := f.failures[id]; len(errs) > 0 {
		f.failures[id] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeReconciler) SubmitSecondary(ctx context.Context, id int64) (*core.Outcome, error) {
	if err := f.next(id); err != nil {
		return nil, err
	}
	return &core.Outcome{}, nil
}

func (f *fakeReconciler) SubmitPrimary(ctx context.Context, id int64) (*core.Registration, error) {
	if err := f.next(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.primaries = append(f.primaries, id)
	f.mu.Unlock()
	return &core.Registration{}, nil
}

func (f *fakeReconciler) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestWorker_AckNack(t *testing.T) {
	mc := consumer.NewMockConsumer(zap.NewNop(), 8,
		models.IntakeMessage{EvaluationID: 1, Role: "aprendiz"},
		models.IntakeMessage{EvaluationID: 2, Role: "estoquista"},
		models.IntakeMessage{EvaluationID: 3},
		models.IntakeMessage{EvaluationID: 4, Role: "secondary"},
		models.IntakeMessage{EvaluationID: 5, Role: "manager"},
		models.IntakeMessage{EvaluationID: 6, Role: "primary"},
	)
	r := newFakeReconciler()
	r.failures[3] = []error{fmt.Errorf("%w: missing invoice", core.ErrValidation)}
	r.failures[4] = []error{fmt.Errorf("%w: ledger timeout", core.ErrUnavailable)}
	r.failures[6] = []error{fmt.Errorf("%w: taken", core.ErrConflict)}

	w := New(config.WorkerConfig{Concurrency: 2, ConsumerRetryDelay: "10ms", ProcessTimeout: "1s"},
		zap.NewNop(), mc, r, metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(mc.Acked()) == 6 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6}, mc.Acked())
	assert.Equal(t, 2, r.callCount(4), "unavailable collaborator leads to redelivery")
	assert.Equal(t, 1, r.callCount(3), "validation errors are not retried")
	assert.Equal(t, 0, r.callCount(5), "unknown roles never reach the engine")
	assert.Equal(t, []int64{2}, r.primaries)
}

func TestWorker_StopsOnClose(t *testing.T) {
	mc := consumer.NewMockConsumer(zap.NewNop(), 1)
	w := New(config.WorkerConfig{Concurrency: 3}, zap.NewNop(), mc, newFakeReconciler(), nil)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	require.NoError(t, mc.Close())
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after consumer close")
	}
}
