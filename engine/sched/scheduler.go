package sched

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// ErrQueueFull rejects a submission immediately instead of blocking the
	// caller. The caller decides: retry next tick, run inline, or drop.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed rejects submissions to a scheduler that has been shut down.
	ErrClosed = errors.New("scheduler is shut down")
)

// Policy selects how submitted jobs get dispatched.
type Policy int

const (
	// PolicyFixed runs a fixed pool of workers and deals jobs round-robin
	// across per-worker queues.
	PolicyFixed Policy = iota
	// PolicyInline runs a single sequential worker.
	PolicyInline
	// PolicyAdaptive hands a job to an idle worker when one is waiting and
	// otherwise runs it synchronously on the submitter, trading submit
	// latency for a bounded queue of zero.
	PolicyAdaptive
)

func (p Policy) String() string {
	switch p {
	case PolicyFixed:
		return "fixed"
	case PolicyInline:
		return "inline"
	case PolicyAdaptive:
		return "adaptive"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy reads a policy name, as found in config files.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "fixed", "":
		return PolicyFixed, nil
	case "inline":
		return PolicyInline, nil
	case "adaptive":
		return PolicyAdaptive, nil
	}
	return PolicyFixed, errors.Errorf("unknown scheduler policy %q", name)
}

// Event is a job lifecycle notification. Delivery order across workers is
// unspecified; the listener must be safe for concurrent calls.
type Event int

const (
	EventQueued Event = iota
	EventStarted
	EventFinished
)

// Stats is a snapshot of the scheduler counters. Queued and Active are
// gauges, the rest count totals since construction.
type Stats struct {
	Queued    int64
	Active    int64
	Completed uint64
	Canceled  uint64
	Failed    uint64
	Rejected  uint64
}

// Options configure a Scheduler. Zero values mean: fixed policy, one worker
// per CPU, queue depth 64, no listener.
type Options struct {
	Policy     Policy
	Workers    int
	QueueDepth int
	OnEvent    func(Event, string)
}

type task struct {
	name      string
	run       func(context.Context) error
	ctx       context.Context
	cancel    context.CancelFunc
	handle    *Handle
	wasQueued bool
}

// Handle tracks one submitted job.
type Handle struct {
	name   string
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (h *Handle) Name() string {
	return h.name
}

// Done closes once the job finished, failed or was canceled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the job's outcome. Before Done closes it returns nil.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel requests cooperative cancellation. Idempotent, never blocks.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the job finished or ctx runs out.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler runs jobs on a bounded set of workers. Submission never blocks:
// under backpressure it fails fast with ErrQueueFull. Every job context
// derives from the scheduler's root context, so Shutdown cancels everything
// in flight while per-job Cancel touches only its own job.
type Scheduler struct {
	opts       Options
	root       context.Context
	rootCancel context.CancelFunc
	queues     []chan *task
	handoff    chan *task
	next       atomic.Uint64
	wg         sync.WaitGroup
	closed     atomic.Bool

	queued    atomic.Int64
	active    atomic.Int64
	completed atomic.Uint64
	canceled  atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	s := &Scheduler{opts: opts}
	s.root, s.rootCancel = context.WithCancel(context.Background())

	switch opts.Policy {
	case PolicyInline:
		s.queues = []chan *task{make(chan *task, opts.QueueDepth)}
		s.startWorker(s.queues[0])
	case PolicyAdaptive:
		s.handoff = make(chan *task)
		for i := 0; i < opts.Workers; i++ {
			s.startWorker(s.handoff)
		}
	default:
		perWorker := (opts.QueueDepth + opts.Workers - 1) / opts.Workers
		s.queues = make([]chan *task, opts.Workers)
		for i := range s.queues {
			s.queues[i] = make(chan *task, perWorker)
			s.startWorker(s.queues[i])
		}
	}
	return s
}

func (s *Scheduler) startWorker(queue chan *task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.root.Done():
				return
			case t := <-queue:
				s.runTask(t)
			}
		}
	}()
}

// Submit hands a job to the scheduler. The returned handle is live even
// when the adaptive policy ran the job before returning.
func (s *Scheduler) Submit(name string, run func(context.Context) error) (*Handle, error) {
	if s.closed.Load() {
		s.rejected.Add(1)
		return nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(s.root)
	t := &task{
		name:   name,
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		handle: &Handle{name: name, done: make(chan struct{}), cancel: cancel},
	}

	if s.opts.Policy == PolicyAdaptive {
		select {
		case s.handoff <- t:
			t.wasQueued = true
			s.queued.Add(1)
			s.emit(EventQueued, name)
		default:
			// nobody idle: the submitter pays for it
			s.runTask(t)
		}
		return t.handle, nil
	}

	queue := s.queues[0]
	if len(s.queues) > 1 {
		queue = s.queues[s.next.Add(1)%uint64(len(s.queues))]
	}
	select {
	case queue <- t:
		t.wasQueued = true
		s.queued.Add(1)
		s.emit(EventQueued, name)
		return t.handle, nil
	default:
		cancel()
		s.rejected.Add(1)
		return nil, ErrQueueFull
	}
}

func (s *Scheduler) runTask(t *task) {
	if t.wasQueued {
		s.queued.Add(-1)
	}
	s.active.Add(1)
	s.emit(EventStarted, t.name)

	err := s.invoke(t)
	t.handle.err = err
	close(t.handle.done)
	t.cancel()

	switch {
	case err == nil:
		s.completed.Add(1)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.canceled.Add(1)
	default:
		s.failed.Add(1)
	}
	s.active.Add(-1)
	s.emit(EventFinished, t.name)
}

// invoke runs the job function and turns a panic into a failed job. The
// worker survives; only this job's processing ends.
func (s *Scheduler) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			println(fmt.Sprintf("[Sched] job %s panicked: %v\n%s", t.name, r, debug.Stack()))
			err = errors.Errorf("job %s panicked: %v", t.name, r)
		}
	}()
	return t.run(t.ctx)
}

func (s *Scheduler) emit(event Event, name string) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event, name)
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Queued:    s.queued.Load(),
		Active:    s.active.Load(),
		Completed: s.completed.Load(),
		Canceled:  s.canceled.Load(),
		Failed:    s.failed.Load(),
		Rejected:  s.rejected.Load(),
	}
}

// Shutdown stops intake, cancels everything in flight and joins the
// workers. Jobs still queued when the workers exit finish as canceled.
// Returns ctx's error when the workers do not drain in time.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// workers are gone, nothing races these receives
	for _, queue := range s.queues {
		draining := true
		for draining {
			select {
			case t := <-queue:
				s.queued.Add(-1)
				t.handle.err = context.Canceled
				close(t.handle.done)
				t.cancel()
				s.canceled.Add(1)
				s.emit(EventFinished, t.name)
			default:
				draining = false
			}
		}
	}
	return nil
}
