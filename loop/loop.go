// Package loop serializes work onto a single goroutine. Everything that
// touches discovery, pairing or control state runs as a posted function.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/hashicorp/go-hclog"
)

type loopError uint8

func (e loopError) Error() string {
	return fmt.Sprintf("loop: %s", loopErrorString[e])
}

const (
	ErrorClosed loopError = iota
)

var loopErrorString = map[loopError]string{
	ErrorClosed: "loop is closed",
}

const (
	batchSize  = 32
	pollPeriod = 50 * time.Millisecond
)

type Loop struct {
	queue  *queue.Queue
	logger hclog.Logger

	closing   chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	running bool
}

func New(logger hclog.Logger) *Loop {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Loop{
		queue:   queue.New(batchSize),
		logger:  logger,
		closing: make(chan struct{}),
	}
}

// Post schedules fn to run on the loop. It never blocks.
func (l *Loop) Post(fn func()) error {
	if l.Closed() {
		return ErrorClosed
	}
	if err := l.queue.Put(fn); err != nil {
		return ErrorClosed
	}
	return nil
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions in order until ctx is cancelled or the loop
// is closed. Functions still queued at that point are dropped. The queue is
// only ever disposed by the goroutine running it.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.Closed() {
		l.mu.Unlock()
		l.queue.Dispose()
		return nil
	}
	l.running = true
	l.mu.Unlock()
	defer l.queue.Dispose()

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.closing:
			return nil
		default:
		}

		items, err := l.queue.Poll(batchSize, pollPeriod)
		if err == queue.ErrTimeout {
			continue
		}
		if err != nil {
			return nil
		}
		for _, item := range items {
			if l.Closed() {
				break
			}
			l.invoke(item.(func()))
		}
	}
}

// RunPending runs the functions queued so far, including any they post,
// on the calling goroutine. It is for callers that drive the loop
// themselves and must not be mixed with Run.
func (l *Loop) RunPending() int {
	ran := 0
	for l.queue.Len() > 0 {
		items, err := l.queue.Get(batchSize)
		if err != nil {
			return ran
		}
		for _, item := range items {
			l.invoke(item.(func()))
			ran++
		}
	}
	return ran
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("posted function panicked", "panic", r)
		}
	}()
	fn()
}

// Close stops the loop. A running Run returns within one poll period and
// disposes the queue itself; otherwise the queue is disposed here.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		close(l.closing)
		if !l.running {
			l.queue.Dispose()
		}
	})
}

func (l *Loop) Closed() bool {
	select {
	case <-l.closing:
		return true
	default:
		return false
	}
}
