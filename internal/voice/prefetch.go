package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds concurrent prefetch transcodes.
const DefaultWorkers = 3

// ErrNotSubmitted is returned by Result for keys outside the current batch.
var ErrNotSubmitted = errors.New("voice not prefetched")

// Func resolves and transcodes the clip named by key.
type Func func(ctx context.Context, key string) (types.MediaResult, error)

// Task is the handle of one prefetch.
type Task struct {
	done   chan struct{}
	result types.MediaResult
	err    error
}

// Wait blocks until the task finishes or ctx is done. A canceled wait does
// not stop the task.
func (t *Task) Wait(ctx context.Context) (types.MediaResult, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return types.NotFound(), ctx.Err()
	}
}

// Prefetcher runs one transcode per submitted key on a bounded pool and keeps
// the handles of the most recent batch.
type Prefetcher struct {
	run    Func
	sem    *semaphore.Weighted
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

func NewPrefetcher(run Func, workers int, logger *zap.Logger) *Prefetcher {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Prefetcher{
		run:    run,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
		tasks:  make(map[string]*Task),
	}
}

// Submit starts a task per distinct key and replaces the previous batch.
// Tasks of a replaced batch still run to completion.
func (p *Prefetcher) Submit(keys []string) map[string]*Task {
	batch := make(map[string]*Task, len(keys))
	for _, key := range keys {
		if _, ok := batch[key]; ok {
			continue
		}
		t := &Task{done: make(chan struct{})}
		batch[key] = t

		p.wg.Add(1)
		metrics.PrefetchInFlight.Inc()
		go p.execute(key, t)
	}

	p.mu.Lock()
	p.tasks = batch
	p.mu.Unlock()

	p.logger.Debug("voice prefetch submitted", zap.Int("tasks", len(batch)))
	return batch
}

func (p *Prefetcher) execute(key string, t *Task) {
	defer p.wg.Done()
	defer metrics.PrefetchInFlight.Dec()
	defer close(t.done)

	ctx := context.Background()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		t.err = err
		return
	}
	defer p.sem.Release(1)

	t.result, t.err = p.run(ctx, key)
	if t.err != nil {
		p.logger.Debug("voice prefetch failed", zap.String("key", key), zap.Error(t.err))
	}
}

// Lookup returns the handle for key in the current batch.
func (p *Prefetcher) Lookup(key string) (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[key]
	return t, ok
}

// Result blocks on the task for key.
func (p *Prefetcher) Result(ctx context.Context, key string) (types.MediaResult, error) {
	t, ok := p.Lookup(key)
	if !ok {
		return types.NotFound(), fmt.Errorf("%s: %w", key, ErrNotSubmitted)
	}
	return t.Wait(ctx)
}

// Wait blocks until every submitted task has finished.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}
