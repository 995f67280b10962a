package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/messaging/consumer"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/metrics"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
	core "github.com/GylleadheBodedono/API-Connect-Checklist/reconciliation/service/core"
)

// Reconciler runs one submission through the matching engine
type Reconciler interface {
	SubmitSecondary(ctx context.Context, evaluationID int64) (*core.Outcome, error)
	SubmitPrimary(ctx context.Context, evaluationID int64) (*core.Registration, error)
}

// Worker drains the intake topic into the matching engine
type Worker struct {
	concurrency        int
	consumerRetryDelay time.Duration
	processTimeout     time.Duration

	logger     *zap.Logger
	consumer   consumer.Consumer
	reconciler Reconciler
	metrics    *metrics.Metrics
}

// New creates a new Worker instance
func New(cfg config.WorkerConfig, logger *zap.Logger, c consumer.Consumer, r Reconciler, m *metrics.Metrics) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		concurrency:        cfg.Concurrency,
		consumerRetryDelay: cfg.ConsumerRetryDelayDuration(),
		processTimeout:     cfg.ProcessTimeoutDuration(),
		logger:             logger,
		consumer:           c,
		reconciler:         r,
		metrics:            m,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("starting worker pool",
		zap.Int("concurrency", w.concurrency),
		zap.Duration("process_timeout", w.processTimeout))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Debug("worker started", zap.Int("worker", workerID))
			w.consumeLoop(ctx, workerID)
			w.logger.Debug("worker stopped", zap.Int("worker", workerID))
		}(i + 1)
	}
	wg.Wait()
	w.logger.Info("worker pool stopped")
}

// consumeLoop is the main loop for a worker goroutine
func (w *Worker) consumeLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		consumeCtx, consumeCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, ack, err := w.consumer.Consume(consumeCtx)
		consumeCancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			if errors.Is(err, consumer.ErrClosed) {
				return
			}
			w.logger.Warn("consumer error", zap.Int("worker", workerID), zap.Error(err))
			w.sleep(ctx, w.consumerRetryDelay)
			continue
		}
		if msg == nil {
			continue
		}

		if !w.handle(ctx, workerID, msg, ack) {
			w.sleep(ctx, w.consumerRetryDelay)
		}
	}
}

// handle processes one message and acknowledges it. It reports false when
// the message was left for redelivery.
func (w *Worker) handle(ctx context.Context, workerID int, msg *models.IntakeMessage, ack func(bool)) bool {
	log := w.logger.With(
		zap.Int("worker", workerID),
		zap.Int64("evaluation_id", msg.EvaluationID),
		zap.String("role", msg.Role))

	role, err := models.ParseRole(msg.Role)
	if err != nil {
		log.Warn("discarding intake message", zap.Error(err))
		w.metrics.RecordIntake("discarded")
		ack(true)
		return true
	}

	pctx, cancel := context.WithTimeout(ctx, w.processTimeout)
	err = w.process(pctx, role, msg.EvaluationID)
	cancel()

	switch {
	case err == nil:
		w.metrics.RecordIntake("ack")
		ack(true)
		return true
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrConflict):
		log.Warn("intake message rejected", zap.Error(err))
		w.metrics.RecordIntake("rejected")
		ack(true)
		return true
	case errors.Is(err, core.ErrUnavailable), ctx.Err() != nil:
		log.Warn("collaborator unavailable, leaving message for redelivery", zap.Error(err))
		w.metrics.RecordIntake("nack")
		ack(false)
		return false
	default:
		log.Error("intake message failed", zap.Error(err))
		w.metrics.RecordIntake("failed")
		ack(true)
		return true
	}
}

func (w *Worker) process(ctx context.Context, role models.Role, evaluationID int64) error {
	if role == models.RolePrimary {
		_, err := w.reconciler.SubmitPrimary(ctx, evaluationID)
		return err
	}
	_, err := w.reconciler.SubmitSecondary(ctx, evaluationID)
	return err
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
