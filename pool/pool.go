// Package pool implements the concurrent job processor spec §5
// describes: a work-stealing pool of goroutine workers, each with its
// own local deque, backed by a global bounded injector queue.
// Submission fails fast under backpressure rather than blocking, and
// every job carries an optional deadline enforced on the collecting
// side via a bounded result channel.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Defaults match spec §5.
const (
	DefaultMaxQueueSize          = 10_000
	DefaultBackpressureThreshold = 0.8
	DefaultIdleTimeout           = 60 * time.Second
)

// ErrQueueFull is returned when the injector already holds
// max_queue_size pending tasks.
var ErrQueueFull = errors.New("pool: queue full")

// ErrSystemOverloaded is returned when the load ratio spec §5 defines
// exceeds the configured backpressure threshold.
var ErrSystemOverloaded = errors.New("pool: system overloaded")

// ErrShutdown is returned by Submit after Shutdown has been called.
var ErrShutdown = errors.New("pool: shut down")

// Job is one unit of work submitted to the pool. Fn must respect
// ctx cancellation where it can. BytesIn feeds the bytes_in metric.
type Job struct {
	Fn       func(ctx context.Context) ([]byte, error)
	Deadline time.Time
	BytesIn  int
}

type task struct {
	job      Job
	resultCh chan jobResult
	queuedAt time.Time
}

type jobResult struct {
	out []byte
	err error
}

// Future is returned by Submit; callers block on Wait for the result.
type Future struct {
	resultCh chan jobResult
	deadline time.Time
}

// Wait blocks until the job completes, ctx is cancelled, or the job's
// own deadline (if set) elapses — whichever comes first. The worker
// itself is not interrupted by a timed-out Wait; it runs to completion
// and its result is simply discarded, per spec §5's cancellation model.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	var deadlineCh <-chan time.Time
	if !f.deadline.IsZero() {
		timer := time.NewTimer(time.Until(f.deadline))
		defer timer.Stop()
		deadlineCh = timer.C
	}
	select {
	case r := <-f.resultCh:
		return r.out, r.err
	case <-deadlineCh:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Options configures a Pool. Zero value applies spec defaults with
// MinThreads=1, MaxThreads=2×GOMAXPROCS.
type Options struct {
	MinThreads             int
	MaxThreads             int
	MaxQueueSize           int
	BackpressureThreshold  float64
	IdleTimeout            time.Duration
	Logger                 hclog.Logger
}

// Pool is a work-stealing job processor.
type Pool struct {
	injector *boundedQueue
	workers  []*workerState
	mu       sync.Mutex // guards workers slice during scale up/down

	minThreads            int
	maxThreads            int
	maxQueueSize          int
	backpressureThreshold float64
	idleTimeout           time.Duration

	active   atomic.Int64
	shutdown atomic.Bool
	logger   hclog.Logger

	Metrics Metrics

	nextWorkerID atomic.Int64
	wg           sync.WaitGroup
}

// New constructs a Pool and starts MinThreads workers immediately.
func New(opts Options) *Pool {
	if opts.MinThreads <= 0 {
		opts.MinThreads = 1
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = max(2*runtime.GOMAXPROCS(0), opts.MinThreads)
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = DefaultMaxQueueSize
	}
	if opts.BackpressureThreshold <= 0 {
		opts.BackpressureThreshold = DefaultBackpressureThreshold
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	p := &Pool{
		injector:              newBoundedQueue(opts.MaxQueueSize),
		minThreads:            opts.MinThreads,
		maxThreads:            opts.MaxThreads,
		maxQueueSize:          opts.MaxQueueSize,
		backpressureThreshold: opts.BackpressureThreshold,
		idleTimeout:           opts.IdleTimeout,
		logger:                opts.Logger,
	}
	for i := 0; i < opts.MinThreads; i++ {
		p.spawnWorker()
	}
	return p
}

func (p *Pool) spawnWorker() {
	w := &workerState{id: int(p.nextWorkerID.Add(1)), pool: p}
	w.lastActive.Store(time.Now().UnixNano())
	p.mu.Lock()
	p.workers = append(p.workers, w)
	p.mu.Unlock()
	p.wg.Add(1)
	go w.run()
}

func (p *Pool) removeWorker(w *workerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.workers {
		if cur == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}

func (p *Pool) queuedEstimate() int {
	total := p.injector.len()
	p.mu.Lock()
	workers := append([]*workerState(nil), p.workers...)
	p.mu.Unlock()
	for _, w := range workers {
		total += w.deque.len()
	}
	return total
}

// Submit enqueues job, or fails fast with ErrQueueFull or
// ErrSystemOverloaded under the thresholds spec §5 defines.
func (p *Pool) Submit(job Job) (*Future, error) {
	if p.shutdown.Load() {
		return nil, ErrShutdown
	}

	queued := p.queuedEstimate()
	if queued >= p.maxQueueSize {
		p.Metrics.rejected.Add(1)
		return nil, ErrQueueFull
	}

	p.mu.Lock()
	numWorkers := len(p.workers)
	p.mu.Unlock()
	if numWorkers == 0 {
		numWorkers = 1
	}

	active := p.active.Load()
	ratio := (float64(active) + float64(queued)/2) / float64(numWorkers*p.maxQueueSize)
	if ratio > p.backpressureThreshold {
		p.Metrics.rejected.Add(1)
		return nil, ErrSystemOverloaded
	}

	t := &task{
		job:      job,
		resultCh: make(chan jobResult, 1),
		queuedAt: time.Now(),
	}
	if !p.injector.push(t) {
		p.Metrics.rejected.Add(1)
		return nil, ErrQueueFull
	}
	p.Metrics.bytesIn.Add(uint64(job.BytesIn))

	p.maybeScaleUp()

	return &Future{resultCh: t.resultCh, deadline: job.Deadline}, nil
}

// maybeScaleUp grows the worker pool toward maxThreads when the
// injector has a backlog and headroom remains.
func (p *Pool) maybeScaleUp() {
	p.mu.Lock()
	current := len(p.workers)
	p.mu.Unlock()
	if current < p.maxThreads && p.injector.len() > 0 {
		p.spawnWorker()
	}
}

// Shutdown signals every worker to stop after its current task and
// waits for them to exit. It is the single atomic flag spec §5's
// cancellation model describes; workers poll it between tasks and
// between steal attempts, never mid-task.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.wg.Wait()
}

type workerState struct {
	id         int
	pool       *Pool
	deque      localDeque
	lastActive atomic.Int64
}

func (w *workerState) run() {
	defer w.pool.wg.Done()
	for {
		if w.pool.shutdown.Load() {
			return
		}

		t := w.deque.popFront()
		if t == nil {
			t = w.pool.injector.pop()
		}
		if t == nil {
			t = w.stealFromPeers()
			if t != nil {
				w.pool.Metrics.stolen.Add(1)
			}
		}

		if t == nil {
			if w.idleTooLong() {
				w.pool.removeWorker(w)
				return
			}
			time.Sleep(idlePollInterval())
			continue
		}

		w.lastActive.Store(time.Now().UnixNano())
		w.execute(t)
	}
}

func (w *workerState) idleTooLong() bool {
	w.pool.mu.Lock()
	aboveMin := len(w.pool.workers) > w.pool.minThreads
	w.pool.mu.Unlock()
	if !aboveMin {
		return false
	}
	last := time.Unix(0, w.lastActive.Load())
	return time.Since(last) > w.pool.idleTimeout
}

// idlePollInterval jitters slightly so many idle workers don't wake in
// lockstep and contend on the injector's lock.
func idlePollInterval() time.Duration {
	return time.Duration(5+rand.Intn(5)) * time.Millisecond
}

func (w *workerState) stealFromPeers() *task {
	w.pool.mu.Lock()
	peers := append([]*workerState(nil), w.pool.workers...)
	w.pool.mu.Unlock()
	for _, peer := range peers {
		if peer == w {
			continue
		}
		if t := peer.deque.stealBack(); t != nil {
			return t
		}
	}
	return nil
}

func (w *workerState) execute(t *task) {
	w.pool.active.Add(1)
	defer w.pool.active.Add(-1)

	start := time.Now()
	ctx := context.Background()
	if !t.job.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, t.job.Deadline)
		defer cancel()
	}

	out, err := w.runJob(ctx, t.job)
	elapsed := time.Since(start)

	if err != nil {
		w.pool.Metrics.recordFailure(elapsed)
	} else {
		w.pool.Metrics.recordCompletion(elapsed, len(out))
	}

	select {
	case t.resultCh <- jobResult{out: out, err: err}:
	default:
		// The collector already gave up (its Wait timed out); the
		// channel is buffered size 1 so this should never actually
		// contend, but never block a worker on a result nobody reads.
	}
}

// runJob invokes the job function, converting any panic into an
// InternalError-shaped result rather than crashing the worker — spec
// §7's panic-protection requirement.
func (w *workerState) runJob(ctx context.Context, job Job) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("worker panic recovered", "worker_id", w.id, "panic", r)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return job.Fn(ctx)
}
