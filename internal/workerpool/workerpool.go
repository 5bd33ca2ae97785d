// Package workerpool runs CPU-bound transformation jobs on a fixed set of
// isolated execution units. Each unit is a goroutine that owns one slot in
// the pool's slot table. A unit that panics or overruns its job deadline is
// retired and a fresh unit takes over the same slot, so one bad input never
// stalls the pool.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

// Pool sizing and timeout defaults.
const (
	MaxPoolSize       = 30
	DefaultPoolSize   = 3
	DefaultJobTimeout = 30 * time.Second
)

// ErrWorkerCrashed rejects a job whose unit panicked.
var ErrWorkerCrashed = errors.New("worker crashed")

// TransformFunc is the work a unit performs. It cannot be interrupted, which
// is why timed-out units are replaced rather than reused.
type TransformFunc func(input string, opts harvest.FormatOptions) (string, error)

// Observer is notified once per settled job with "ok", "error", "crash",
// "timeout", or "terminated".
type Observer func(outcome string)

// Config controls pool construction.
type Config struct {
	// Size is the requested unit count, clamped to [1, MaxPoolSize].
	Size int
	// HardwareHint caps Size; zero means runtime.NumCPU().
	HardwareHint int
	// JobTimeout bounds each job; zero means DefaultJobTimeout.
	JobTimeout time.Duration
	IDs        harvest.IDGenerator
	Logger     *zap.Logger
	Observer   Observer
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Size   int
	Idle   int
	Active int
	Queued int
}

type result struct {
	out string
	err error
}

type job struct {
	id    string
	input string
	opts  harvest.FormatOptions
	slot  int
	timer *time.Timer
	done  chan result
}

type unit struct {
	slot     int
	requests chan *job
	quit     chan struct{}
}

// Pool is safe for concurrent use.
type Pool struct {
	fn       TransformFunc
	timeout  time.Duration
	ids      harvest.IDGenerator
	logger   *zap.Logger
	observer Observer

	mu         sync.Mutex
	slots      []*unit
	idle       []int
	active     map[string]*job
	queue      []*job
	terminated bool
	seq        uint64
}

// New builds a pool and starts its units.
func New(fn TransformFunc, cfg Config) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("workerpool: transform func is required")
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	size = min(size, MaxPoolSize)
	hint := cfg.HardwareHint
	if hint <= 0 {
		hint = runtime.NumCPU()
	}
	size = max(1, min(size, hint))

	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		fn:       fn,
		timeout:  timeout,
		ids:      cfg.IDs,
		logger:   logger,
		observer: cfg.Observer,
		slots:    make([]*unit, size),
		idle:     make([]int, 0, size),
		active:   make(map[string]*job),
	}
	for i := range p.slots {
		p.slots[i] = p.spawn(i)
		p.idle = append(p.idle, i)
	}
	return p, nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Stats reports current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Size: len(p.slots), Idle: len(p.idle), Active: len(p.active), Queued: len(p.queue)}
}

// Submit runs input through the transform on the next free unit and waits
// for the outcome. Cancelling ctx abandons the wait; a queued job is withdrawn
// but a running one finishes in the background.
func (p *Pool) Submit(ctx context.Context, input string, opts harvest.FormatOptions) (string, error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return "", harvest.ErrPoolTerminated
	}
	j := &job{id: p.newTaskID(), input: input, opts: opts, slot: -1, done: make(chan result, 1)}
	p.queue = append(p.queue, j)
	p.dispatchLocked()
	p.mu.Unlock()

	select {
	case r := <-j.done:
		return r.out, r.err
	case <-ctx.Done():
		p.withdraw(j)
		return "", fmt.Errorf("await transform %s: %w", j.id, ctx.Err())
	}
}

// Terminate rejects every active and queued job, stops all units, and makes
// later submissions fail with harvest.ErrPoolTerminated. It is idempotent.
func (p *Pool) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return
	}
	p.terminated = true
	for id, j := range p.active {
		j.timer.Stop()
		p.settleLocked(j, result{err: harvest.ErrPoolTerminated}, "terminated")
		delete(p.active, id)
	}
	for _, j := range p.queue {
		p.settleLocked(j, result{err: harvest.ErrPoolTerminated}, "terminated")
	}
	for _, u := range p.slots {
		close(u.quit)
	}
	p.queue = nil
	p.idle = nil
	p.slots = nil
	p.active = map[string]*job{}
	p.logger.Debug("worker pool terminated")
}

// dispatchLocked binds queued jobs to idle units until one side runs out.
func (p *Pool) dispatchLocked() {
	for len(p.idle) > 0 && len(p.queue) > 0 {
		slot := p.idle[0]
		p.idle = p.idle[1:]
		j := p.queue[0]
		p.queue = p.queue[1:]

		j.slot = slot
		p.active[j.id] = j
		id := j.id
		j.timer = time.AfterFunc(p.timeout, func() { p.expire(id) })
		p.slots[slot].requests <- j
	}
}

func (p *Pool) spawn(slot int) *unit {
	u := &unit{slot: slot, requests: make(chan *job, 1), quit: make(chan struct{})}
	go p.loop(u)
	return u
}

func (p *Pool) loop(u *unit) {
	for {
		select {
		case <-u.quit:
			return
		case j := <-u.requests:
			select {
			case <-u.quit:
				return
			default:
			}
			r, crashed := p.execute(j)
			p.complete(u, j, r, crashed)
		}
	}
}

func (p *Pool) execute(j *job) (r result, crashed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r, crashed = result{err: fmt.Errorf("%w: %v", ErrWorkerCrashed, rec)}, true
		}
	}()
	out, err := p.fn(j.input, j.opts)
	return result{out: out, err: err}, false
}

// complete handles a unit's report. Reports from retired units or for jobs
// that already settled are dropped.
func (p *Pool) complete(u *unit, j *job, r result, crashed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated || u.slot >= len(p.slots) || p.slots[u.slot] != u {
		return
	}
	if _, ok := p.active[j.id]; !ok {
		return
	}
	delete(p.active, j.id)
	j.timer.Stop()

	switch {
	case crashed:
		p.logger.Warn("worker crashed, replacing", zap.Int("slot", u.slot), zap.String("task_id", j.id), zap.Error(r.err))
		p.settleLocked(j, r, "crash")
		p.replaceLocked(u.slot)
	case r.err != nil:
		p.settleLocked(j, r, "error")
		p.idle = append(p.idle, u.slot)
	default:
		p.settleLocked(j, r, "ok")
		p.idle = append(p.idle, u.slot)
	}
	p.dispatchLocked()
}

func (p *Pool) expire(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.active[id]
	if !ok || p.terminated {
		return
	}
	delete(p.active, id)
	p.logger.Warn("worker job timed out, replacing unit",
		zap.Int("slot", j.slot),
		zap.String("task_id", id),
		zap.Duration("timeout", p.timeout),
	)
	p.settleLocked(j, result{err: fmt.Errorf("task %s: %w after %s", id, harvest.ErrTransformTimeout, p.timeout)}, "timeout")
	p.replaceLocked(j.slot)
	p.dispatchLocked()
}

// replaceLocked retires the unit in slot and installs a fresh idle one.
func (p *Pool) replaceLocked(slot int) {
	close(p.slots[slot].quit)
	p.slots[slot] = p.spawn(slot)
	p.idle = append(p.idle, slot)
}

func (p *Pool) withdraw(j *job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.queue {
		if q == j {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

func (p *Pool) settleLocked(j *job, r result, outcome string) {
	select {
	case j.done <- r:
	default:
	}
	if p.observer != nil {
		p.observer(outcome)
	}
}

func (p *Pool) newTaskID() string {
	p.seq++
	if p.ids != nil {
		if id, err := p.ids.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("job-%d", p.seq)
}
