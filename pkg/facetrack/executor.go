package facetrack

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Executor runs listener callbacks on the host's designated UI context.
// Implementations must run posted funcs in post order.
type Executor interface {
	Post(fn func())
}

// Inline runs callbacks on the posting goroutine.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// ExecutorFunc adapts a function to an Executor, e.g. a host's
// runOnUIThread hook.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Post(fn func()) { f(fn) }

// Default Loop sizing.
const (
	DefaultLoopQueue       = 256
	DefaultLoopPostTimeout = 50 * time.Millisecond
)

// Loop is a single-goroutine executor with a bounded FIFO queue.
// Posts block for at most the post timeout when the queue is full and are
// then dropped and counted.
type Loop struct {
	queue       chan func()
	postTimeout time.Duration
	logger      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once

	executed atomic.Uint64
	dropped  atomic.Uint64
}

// NewLoop creates a Loop. Zero values select the defaults.
func NewLoop(size int, postTimeout time.Duration) *Loop {
	if size <= 0 {
		size = DefaultLoopQueue
	}
	if postTimeout <= 0 {
		postTimeout = DefaultLoopPostTimeout
	}
	return &Loop{
		queue:       make(chan func(), size),
		postTimeout: postTimeout,
		logger:      slog.Default().With("component", "facetrack.loop"),
		done:        make(chan struct{}),
	}
}

// SetLogger replaces the loop's logger.
func (l *Loop) SetLogger(logger *slog.Logger) {
	l.logger = logger.With("component", "facetrack.loop")
}

// Post queues fn. It never blocks longer than the post timeout.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		l.dropped.Add(1)
		return
	default:
	}

	select {
	case l.queue <- fn:
		return
	default:
	}

	timer := time.NewTimer(l.postTimeout)
	defer timer.Stop()

	select {
	case l.queue <- fn:
	case <-timer.C:
		if l.dropped.Add(1)%100 == 1 {
			l.logger.Warn("ui queue full, dropping callbacks", "dropped", l.dropped.Load())
		}
	case <-l.done:
		l.dropped.Add(1)
	}
}

// Run executes queued callbacks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("listener callback panicked", "panic", r)
		}
	}()
	fn()
	l.executed.Add(1)
}

// Close stops Run. Pending callbacks are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Executed returns how many callbacks have run.
func (l *Loop) Executed() uint64 { return l.executed.Load() }

// Dropped returns how many callbacks were discarded.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int { return len(l.queue) }
