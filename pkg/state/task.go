package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-drift/pulse/pkg/errors"
)

// scheduler is the app's foreground queue: closures marshalled here run on
// the app thread, in order, when the queue is pumped by Flush or Await.
// Push may be called from any goroutine.
type scheduler struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	hook  func()
}

func newScheduler() *scheduler {
	return &scheduler{wake: make(chan struct{}, 1)}
}

func (s *scheduler) setHook(fn func()) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func (s *scheduler) push(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	hook := s.hook
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	if hook != nil {
		hook()
	}
}

func (s *scheduler) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	return fn, true
}

// Task is the cancellable, awaitable handle to a spawned continuation.
type Task[R any] struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result R
	err    error
}

// ID returns the task's identity, for diagnostics.
func (t *Task[R]) ID() uuid.UUID {
	return t.id
}

// Cancel requests cooperative cancellation: the task body observes it
// through its context, and continuations it has marshalled but that have
// not yet run are skipped. Cancellation never preempts a running closure.
func (t *Task[R]) Cancel() {
	t.cancel()
}

// Done is closed when the task body has returned.
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task body has returned, without pumping the
// app's foreground queue. Use Await when the task marshals continuations
// that only the current thread can run.
func (t *Task[R]) Result() (R, error) {
	<-t.done
	return t.result, t.err
}

// AsyncApp is the handle a spawned task uses to reach back into the app.
// It never touches entity state on the task's goroutine: every operation
// is marshalled onto the app thread and waits for it to run there.
type AsyncApp struct {
	app *App
	ctx context.Context
}

// Dispatch marshals f onto the app thread as one mutation turn and blocks
// until it has run. If the task has been cancelled, f is skipped and a
// task-kind error wrapping the context's error is returned.
func (a *AsyncApp) Dispatch(f func(*App)) error {
	if err := a.ctx.Err(); err != nil {
		return cancelledError(err)
	}
	done := make(chan struct{})
	ran := false
	a.app.sched.push(func() {
		defer close(done)
		if a.ctx.Err() != nil {
			return
		}
		a.app.update(func() {
			f(a.app)
		})
		ran = true
	})
	select {
	case <-done:
		if !ran {
			return cancelledError(a.ctx.Err())
		}
		return nil
	case <-a.ctx.Done():
		return cancelledError(a.ctx.Err())
	}
}

func cancelledError(err error) error {
	return &errors.Error{
		Op:        "state.Dispatch",
		Kind:      errors.KindTask,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// UpdateWeak resumes mutation of an entity from a task, if it is still
// alive. A dead entity yields ErrReleased and the mutation is skipped;
// the task itself carries on.
func UpdateWeak[T any](a *AsyncApp, weak WeakHandle[T], f func(*T, *Context[T])) error {
	var err error
	derr := a.Dispatch(func(app *App) {
		h, ok := weak.Upgrade()
		if !ok {
			err = ErrReleased
			return
		}
		defer h.Release()
		Update(app, h, f)
	})
	if derr != nil {
		return derr
	}
	return err
}

// UpdateWeakResult is UpdateWeak for continuations that need a value out
// of the mutation closure.
func UpdateWeakResult[T any, R any](a *AsyncApp, weak WeakHandle[T], f func(*T, *Context[T]) R) (R, error) {
	var result R
	var err error
	derr := a.Dispatch(func(app *App) {
		h, ok := weak.Upgrade()
		if !ok {
			err = ErrReleased
			return
		}
		defer h.Release()
		result = UpdateResult(app, h, f)
	})
	if derr != nil {
		return result, derr
	}
	return result, err
}

// Spawn schedules f on its own goroutine, handing it a cancellation
// context, a weak handle to the entity under mutation, and an async
// handle to the app. The weak handle deliberately keeps nothing alive: a
// background task referencing an entity is no reason for the entity to
// survive, so every resumption must re-upgrade and cope with ErrReleased.
func Spawn[T any, R any](cx *Context[T], f func(ctx context.Context, entity WeakHandle[T], app *AsyncApp) R) *Task[R] {
	tctx, cancel := context.WithCancel(context.Background())
	task := &Task[R]{
		id:     uuid.New(),
		ctx:    tctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	weak := cx.Weak()
	async := &AsyncApp{app: cx.app, ctx: tctx}
	go func() {
		defer close(task.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				perr := &errors.PanicError{
					Op:         "state.Task",
					Value:      r,
					StackTrace: errors.CaptureStack(),
					Timestamp:  time.Now(),
				}
				errors.ReportPanic(perr)
				task.err = perr
			}
		}()
		task.result = f(tctx, weak, async)
	}()
	return task
}

// Await blocks until the task completes, pumping the app's foreground
// queue so continuations the task marshals back can make progress. It
// must be called on the app thread.
func Await[R any](ctx context.Context, app *App, task *Task[R]) (R, error) {
	for {
		app.Flush()
		select {
		case <-task.done:
			return task.result, task.err
		case <-app.sched.wake:
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		}
	}
}
