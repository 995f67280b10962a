package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	block   chan struct{}
}

func (p *fakePublisher) PublishBatch(ctx context.Context, evs []Event) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	cp := make([]Event, len(evs))
	copy(cp, evs)
	p.batches = append(p.batches, cp)
	return nil
}

func (p *fakePublisher) published() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestForwarder_PublishesOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{BatchSize: 3, BatchTimeout: time.Hour}, pub, nil, zap.NewNop())
	defer f.Close()

	b := NewBus(100, 20)
	b.SetSink(f)
	appendN(b, 3)

	assert.Eventually(t, func() bool { return len(pub.published()) == 3 },
		time.Second, 10*time.Millisecond)
}

func TestForwarder_PublishesOnTimer(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{BatchSize: 100, BatchTimeout: 20 * time.Millisecond}, pub, nil, zap.NewNop())
	defer f.Close()

	f.Observe(Event{ID: "evt-1-1"})

	assert.Eventually(t, func() bool { return len(pub.published()) == 1 },
		time.Second, 10*time.Millisecond)
}

func TestForwarder_CloseFlushesBuffer(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{BatchSize: 100, BatchTimeout: time.Hour}, pub, nil, zap.NewNop())

	f.Observe(Event{ID: "evt-1-1"})
	f.Observe(Event{ID: "evt-1-2"})
	f.Close()

	got := pub.published()
	require.Len(t, got, 2)
	assert.Equal(t, "evt-1-1", got[0].ID)
	assert.Equal(t, "evt-1-2", got[1].ID)
}

func TestForwarder_DropsWhenBufferFull(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	var drops int
	var mu sync.Mutex
	onDrop := func() {
		mu.Lock()
		drops++
		mu.Unlock()
	}
	f := NewForwarder(ForwarderConfig{BatchSize: 100, BatchTimeout: time.Hour, MaxBuffered: 2}, pub, onDrop, zap.NewNop())

	start := time.Now()
	for i := 0; i < 5; i++ {
		f.Observe(Event{ID: "evt"})
	}
	assert.Less(t, time.Since(start), time.Second, "Observe must not block")
	assert.Equal(t, uint64(3), f.Dropped())

	close(pub.block)
	f.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, drops)
	assert.Len(t, pub.published(), 2)
}

func TestForwarder_PublishErrorCountsDrops(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := NewForwarder(ForwarderConfig{BatchSize: 100, BatchTimeout: time.Hour}, pub, nil, zap.NewNop())

	f.Observe(Event{ID: "evt-1-1"})
	f.Close()

	assert.Equal(t, uint64(1), f.Dropped())
}

func TestForwarder_PreservesBusOrder(t *testing.T) {
	pub := &fakePublisher{}
	f := NewForwarder(ForwarderConfig{BatchSize: 7, BatchTimeout: time.Millisecond, MaxBuffered: 1000}, pub, nil, zap.NewNop())

	b := NewBus(1000, 20)
	b.SetSink(f)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			appendN(b, 50)
		}()
	}
	wg.Wait()
	f.Close()

	got := pub.published()
	require.Len(t, got, 400)
	assert.Zero(t, f.Dropped())
	for i := 1; i < len(got); i++ {
		require.Less(t, seqOf(t, got[i-1].ID), seqOf(t, got[i].ID), "position %d", i)
	}
}
