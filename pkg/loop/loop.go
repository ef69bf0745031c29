package loop

import (
	"context"
	"sync"
)

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop runs tasks one at a time on a single goroutine, in submission order.
// It is the document's event loop: everything that touches the page tree is
// submitted here, so no task ever observes another one half-way through.
type Loop struct {
	tasks   chan Task
	quit    chan struct{}
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
	started bool

	// AfterEach runs on the loop goroutine after every task, e.g. to deliver
	// the mutation records the task produced.
	AfterEach func(ctx context.Context)

	// OnPanic receives a recovered panic value. A panicking task never stops the loop.
	OnPanic func(v interface{})
}

// New creates a loop with the given queue capacity.
func New(queue int) *Loop {
	if queue <= 0 {
		queue = 64
	}
	return &Loop{tasks: make(chan Task, queue), quit: make(chan struct{}), stop: make(chan struct{})}
}

// Start launches the loop goroutine. It exits when ctx is done or Close is called.
func (l *Loop) Start(ctx context.Context) {
	l.closeMu.Lock()
	if l.started {
		l.closeMu.Unlock()
		return
	}
	l.started = true
	l.closeMu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.quit)
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-l.tasks:
				if !ok {
					return
				}
				l.run(ctx, task)
			}
		}
	}()
}

func (l *Loop) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil && l.OnPanic != nil {
			l.OnPanic(r)
		}
	}()
	task(ctx)
	if l.AfterEach != nil {
		l.AfterEach(ctx)
	}
}

// Submit enqueues a task. Returns ErrLoopClosed if the loop is closed.
func (l *Loop) Submit(task Task) error {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		return ErrLoopClosed
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.quit:
		return ErrLoopClosed
	case <-l.stop:
		return ErrLoopClosed
	}
}

// SubmitCtx enqueues a task but returns promptly if ctx is canceled.
func (l *Loop) SubmitCtx(ctx context.Context, task Task) error {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		return ErrLoopClosed
	}
	select {
	case l.tasks <- task:
		return nil
	case <-l.quit:
		return ErrLoopClosed
	case <-l.stop:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call submits task and waits until it has run, including AfterEach.
// It must not be called from a task.
func (l *Loop) Call(ctx context.Context, task Task) error {
	done := make(chan struct{})
	err := l.SubmitCtx(ctx, func(ctx context.Context) {
		defer close(done)
		task(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-l.quit:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// AfterEach for this task runs right after done is closed; a no-op task
	// queued behind it guarantees it has finished.
	return l.barrier(ctx)
}

func (l *Loop) barrier(ctx context.Context) error {
	done := make(chan struct{})
	if err := l.SubmitCtx(ctx, func(context.Context) { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.quit:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new tasks and waits for queued tasks to finish.
// Submitters blocked on a full queue return ErrLoopClosed, whether or not the
// loop was ever started.
func (l *Loop) Close() {
	// release blocked submitters first, they hold closeMu for reading
	l.stopped.Do(func() { close(l.stop) })
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return
	}
	l.closed = true
	close(l.tasks)
	l.closeMu.Unlock()
	l.wg.Wait()
}

// ErrLoopClosed is returned if a Submit is attempted after Close.
var ErrLoopClosed = &LoopError{"event loop closed"}

// LoopError provides a simple typed error for loop operations.
type LoopError struct{ msg string }

func (e *LoopError) Error() string { return e.msg }
