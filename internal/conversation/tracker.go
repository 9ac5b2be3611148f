package conversation

import (
	"context"
	"sync"
)

// Tracker runs follow-up work (explanations, translations) keyed by message
// id. Starting a task under a key that is still running cancels the older
// one. Results of a task that finishes after the user moved on are still
// applied unless it was superseded.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	seq   uint64
	tasks map[string]trackedTask
	wg    sync.WaitGroup
}

type trackedTask struct {
	seq    uint64
	cancel context.CancelFunc
}

func NewTracker(parent context.Context) *Tracker {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Tracker{ctx: ctx, cancel: cancel, tasks: make(map[string]trackedTask)}
}

// Go starts fn in its own goroutine. fn should drop its result when ctx is
// done. After Close, Go does nothing and returns false.
func (t *Tracker) Go(key string, fn func(ctx context.Context)) bool {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return false
	}
	if prev, ok := t.tasks[key]; ok {
		prev.cancel()
	}
	t.seq++
	seq := t.seq
	ctx, cancel := context.WithCancel(t.ctx)
	t.tasks[key] = trackedTask{seq: seq, cancel: cancel}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.finish(key, seq, cancel)
		fn(ctx)
	}()
	return true
}

func (t *Tracker) finish(key string, seq uint64, cancel context.CancelFunc) {
	cancel()
	t.mu.Lock()
	if cur, ok := t.tasks[key]; ok && cur.seq == seq {
		delete(t.tasks, key)
	}
	t.mu.Unlock()
}

// Cancel stops the task running under key, if any.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.tasks[key]; ok {
		cur.cancel()
		delete(t.tasks, key)
	}
}

// Pending is the number of tasks still running.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Wait blocks until every started task has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close cancels all tasks and waits for them.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
}
