package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Publisher ships a batch of events to an external stream
type Publisher interface {
	PublishBatch(ctx context.Context, evs []Event) error
}

// ForwarderConfig tunes batching of the mirror
type ForwarderConfig struct {
	BatchSize      int
	BatchTimeout   time.Duration
	MaxBuffered    int // events held while the publisher is behind
	PublishTimeout time.Duration
	FlushQueue     int
}

func (c *ForwarderConfig) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = 10 * c.BatchSize
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.FlushQueue <= 0 {
		c.FlushQueue = 4
	}
}

// Forwarder mirrors bus events to a Publisher in batches. It implements Sink:
// Observe never blocks, and events beyond MaxBuffered are dropped.
type Forwarder struct {
	cfg       ForwarderConfig
	publisher Publisher
	logger    *zap.Logger
	onDrop    func()

	buffer      []Event
	bufferMutex sync.Mutex
	flushMutex  sync.Mutex // keeps batches entering flushChan in buffer order
	flushChan   chan []Event
	dropped     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewForwarder starts the batching goroutines. onDrop may be nil.
func NewForwarder(cfg ForwarderConfig, publisher Publisher, onDrop func(), logger *zap.Logger) *Forwarder {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	f := &Forwarder{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		onDrop:    onDrop,
		buffer:    make([]Event, 0, cfg.BatchSize),
		flushChan: make(chan []Event, cfg.FlushQueue),
		ctx:       ctx,
		cancel:    cancel,
	}

	f.wg.Add(2)
	go f.batchTimer()
	go f.batchPublisher()
	return f
}

// Observe queues ev for publishing
func (f *Forwarder) Observe(ev Event) {
	f.bufferMutex.Lock()
	if len(f.buffer) >= f.cfg.MaxBuffered {
		f.bufferMutex.Unlock()
		f.drop(1)
		return
	}
	f.buffer = append(f.buffer, ev)
	full := len(f.buffer) >= f.cfg.BatchSize
	f.bufferMutex.Unlock()

	if full {
		f.flushIfNeeded()
	}
}

// Dropped returns how many events were discarded
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Forwarder) drop(n int) {
	f.dropped.Add(uint64(n))
	if f.onDrop != nil {
		for i := 0; i < n; i++ {
			f.onDrop()
		}
	}
}

func (f *Forwarder) batchTimer() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushIfNeeded()
		case <-f.ctx.Done():
			return
		}
	}
}

func (f *Forwarder) batchPublisher() {
	defer f.wg.Done()

	for {
		select {
		case batch := <-f.flushChan:
			f.publish(batch)
		case <-f.ctx.Done():
			for _, batch := range f.takeAll() {
				f.publish(batch)
			}
			return
		}
	}
}

// takeAll empties the flush queue and then the buffer, in that order. Holding
// flushMutex means no flush is halfway between the two.
func (f *Forwarder) takeAll() [][]Event {
	f.flushMutex.Lock()
	defer f.flushMutex.Unlock()

	var out [][]Event
drain:
	for {
		select {
		case batch := <-f.flushChan:
			out = append(out, batch)
		default:
			break drain
		}
	}

	f.bufferMutex.Lock()
	if len(f.buffer) > 0 {
		out = append(out, f.buffer)
	}
	f.buffer = nil
	f.bufferMutex.Unlock()
	return out
}

// flushIfNeeded hands the buffer to the publisher goroutine. When the flush
// queue is full the events stay buffered for the next tick.
func (f *Forwarder) flushIfNeeded() {
	f.flushMutex.Lock()
	defer f.flushMutex.Unlock()

	f.bufferMutex.Lock()
	if len(f.buffer) == 0 {
		f.bufferMutex.Unlock()
		return
	}
	batch := make([]Event, len(f.buffer))
	copy(batch, f.buffer)
	f.buffer = f.buffer[:0]
	f.bufferMutex.Unlock()

	select {
	case f.flushChan <- batch:
	default:
		f.bufferMutex.Lock()
		f.buffer = append(batch, f.buffer...)
		f.bufferMutex.Unlock()
	}
}

func (f *Forwarder) publish(batch []Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.PublishTimeout)
	defer cancel()

	start := time.Now()
	if err := f.publisher.PublishBatch(ctx, batch); err != nil {
		f.logger.Warn("event mirror publish failed, batch dropped",
			zap.Int("count", len(batch)), zap.Error(err))
		f.drop(len(batch))
		return
	}
	f.logger.Debug("event mirror batch published",
		zap.Int("count", len(batch)), zap.Duration("took", time.Since(start)))
}

// Close flushes buffered events and stops the goroutines
func (f *Forwarder) Close() {
	f.cancel()
	f.wg.Wait()
}

var _ Sink = (*Forwarder)(nil)
