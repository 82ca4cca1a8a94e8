// Package dispatch runs tasks asynchronously on a worker pool, serialized and
// coalesced per bucket.
//
// Per bucket key at most one handler execution is running at any time. Tasks
// that are dispatched to a bucket while one of its tasks is executed are not
// queued: they replace the task in the single pending slot of the bucket.
// When the running execution finishes, the pending task is started.
// This guarantees that after the last Dispatch() call for a bucket at least
// one execution with the latest task happens, without the backlog growing
// with the number of events.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/routines"
)

const loggerName = "dispatcher"

const DefWorkers = 4

// Task is an immutable unit of work.
type Task interface {
	// Kind is a short name of the task type, it is used as metric label.
	Kind() string
	LogFields() []zap.Field
}

// Handler executes tasks.
type Handler interface {
	HandleTask(ctx context.Context, task Task) error
}

// HandlerFunc is an adapter to use ordinary functions as Handler.
type HandlerFunc func(context.Context, Task) error

func (f HandlerFunc) HandleTask(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type job struct {
	task    Task
	handler Handler
}

type bucket struct {
	key     string
	pending *job
}

// Dispatcher schedules task executions per bucket on a bounded worker pool.
type Dispatcher struct {
	logger *zap.Logger
	pool   *routines.Pool

	ctx      context.Context
	cancelFn context.CancelFunc

	// lock guards buckets and stopped.
	// A bucket exists in the map while an execution for it is running.
	lock    sync.Mutex
	buckets map[string]*bucket
	stopped bool
}

// New returns a Dispatcher that runs handlers on up to workers go-routines.
func New(workers int) *Dispatcher {
	ctx, cancelFn := context.WithCancel(context.Background())

	return &Dispatcher{
		logger:   zap.L().Named(loggerName),
		pool:     routines.NewPool(workers),
		ctx:      ctx,
		cancelFn: cancelFn,
		buckets:  map[string]*bucket{},
	}
}

// Dispatch schedules the execution of task by handler.
// It never blocks and never runs the handler on the calling go-routine.
// If an execution for bucketKey is currently running, task replaces a
// previously pending task of the bucket and is run when the current
// execution finished.
func (d *Dispatcher) Dispatch(bucketKey string, task Task, handler Handler) {
	logger := d.logger.With(logfields.Bucket(bucketKey), logfields.TaskKind(task.Kind()))
	j := &job{task: task, handler: handler}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.stopped {
		logger.Warn(
			"dispatcher is stopped, task is dropped",
			logfields.Event("dispatch_task_dropped"),
		)
		return
	}

	metrics.dispatchedInc(task.Kind())

	if b, exists := d.buckets[bucketKey]; exists {
		if b.pending != nil {
			metrics.coalescedInc(b.pending.task.Kind())
			logger.Debug(
				"pending task of bucket replaced",
				logfields.Event("dispatch_task_coalesced"),
			)
		}

		b.pending = j
		return
	}

	b := &bucket{key: bucketKey}
	d.buckets[bucketKey] = b
	metrics.runningBucketsInc()

	d._schedule(b, j)
}

// _schedule queues the execution of j for bucket b.
// d.lock must be held by the caller.
func (d *Dispatcher) _schedule(b *bucket, j *job) {
	d.pool.Queue(func() {
		d.run(b.key, j)
		d.finished(b)
	})
}

func (d *Dispatcher) finished(b *bucket) {
	d.lock.Lock()
	defer d.lock.Unlock()

	next := b.pending
	b.pending = nil

	if next == nil || d.stopped {
		delete(d.buckets, b.key)
		metrics.runningBucketsDec()
		return
	}

	d._schedule(b, next)
}

// run executes the handler, errors and panics are logged and do not
// propagate.
func (d *Dispatcher) run(bucketKey string, j *job) {
	kind := j.task.Kind()
	logger := d.logger.With(
		logfields.Bucket(bucketKey),
		logfields.TaskKind(kind),
		zap.String("dispatch.run_id", uuid.NewString()),
	).With(j.task.LogFields()...)

	start := time.Now()
	result := resultLabelSuccess

	defer func() {
		if r := recover(); r != nil {
			result = resultLabelPanic
			logger.Error(
				"task handler panicked",
				logfields.Event("dispatch_task_panicked"),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.StackSkip("stacktrace", 1),
			)
		}

		metrics.executionObserve(kind, result, time.Since(start))
	}()

	logger.Debug("executing task", logfields.Event("dispatch_task_executing"))

	err := j.handler.HandleTask(d.ctx, j.task)
	if err != nil {
		result = resultLabelFailure
		logger.Error(
			"task execution failed",
			logfields.Event("dispatch_task_failed"),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	logger.Debug(
		"task executed",
		logfields.Event("dispatch_task_executed"),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop rejects further Dispatch calls, cancels the context of running
// handlers, drops pending tasks and waits until all running executions
// finished.
func (d *Dispatcher) Stop() {
	d.logger.Debug("dispatcher terminating", logfields.Event("dispatcher_terminating"))

	d.lock.Lock()
	if d.stopped {
		d.lock.Unlock()
		return
	}
	d.stopped = true
	d.lock.Unlock()

	d.cancelFn()
	d.pool.Wait()

	d.logger.Info("dispatcher terminated", logfields.Event("dispatcher_terminated"))
}
