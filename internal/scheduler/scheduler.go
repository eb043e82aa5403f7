// Package scheduler runs asynchronous tasks one at a time, in submission
// order, with a fixed cooldown after every task.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/f1-transcriber/internal/metrics"
)

// DefaultCooldown is used when New is given a non-positive cooldown.
const DefaultCooldown = 3 * time.Second

// Task is a unit of work. Its error is handed to the submitter unchanged.
type Task func() (any, error)

type entry struct {
	task   Task
	future *Future
}

// Stats reports the current state of the scheduler.
type Stats struct {
	Pending     int   `json:"pending"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Running     bool  `json:"running"`
	CoolingDown bool  `json:"cooling_down"`
}

// Scheduler serializes tasks through a single worker. Create one per API
// credential and share it between all callers of that credential.
type Scheduler struct {
	cooldown time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	queue   []entry
	running bool

	gate gate

	completed atomic.Int64
	failed    atomic.Int64
}

// New creates an idle scheduler. No goroutine or timer is started until the
// first Submit.
func New(cooldown time.Duration, log zerolog.Logger) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Scheduler{
		cooldown: cooldown,
		log:      log,
	}
}

// Cooldown returns the configured pause between tasks.
func (s *Scheduler) Cooldown() time.Duration { return s.cooldown }

// Submit queues task and returns its Future. A worker is started if none is
// active; otherwise the task waits its turn.
func (s *Scheduler) Submit(task Task) *Future {
	f := newFuture()

	s.mu.Lock()
	s.queue = append(s.queue, entry{task: task, future: f})
	depth := len(s.queue)
	start := !s.running
	if start {
		s.running = true
	}
	s.mu.Unlock()

	metrics.SchedulerQueueDepth.Set(float64(depth))
	if start {
		s.log.Debug().Int("pending", depth).Msg("scheduler worker started")
		go s.work()
	}
	return f
}

// Stats returns current queue statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	pending, running := len(s.queue), s.running
	s.mu.Unlock()
	return Stats{
		Pending:     pending,
		Completed:   s.completed.Load(),
		Failed:      s.failed.Load(),
		Running:     running,
		CoolingDown: s.gate.active(),
	}
}

func (s *Scheduler) work() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			s.log.Debug().Msg("scheduler worker idle")
			return
		}
		s.mu.Unlock()

		// Only this worker removes entries, so the queue stays non-empty
		// while we sit out the cooldown.
		if s.gate.active() {
			waitStart := time.Now()
			s.gate.wait()
			metrics.SchedulerCooldownWait.Observe(time.Since(waitStart).Seconds())
		}

		s.mu.Lock()
		e := s.queue[0]
		s.queue[0] = entry{}
		s.queue = s.queue[1:]
		depth := len(s.queue)
		s.mu.Unlock()
		metrics.SchedulerQueueDepth.Set(float64(depth))

		s.run(e)

		s.gate.arm(s.cooldown)
	}
}

func (s *Scheduler) run(e entry) {
	start := time.Now()
	v, err := s.call(e.task)
	metrics.SchedulerTaskDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.failed.Add(1)
		metrics.SchedulerTasksTotal.WithLabelValues("error").Inc()
		s.log.Debug().Err(err).Dur("took", time.Since(start)).Msg("task failed")
	} else {
		s.completed.Add(1)
		metrics.SchedulerTasksTotal.WithLabelValues("ok").Inc()
	}
	e.future.resolve(v, err)
}

// call runs task, turning a panic into a *PanicError so one bad task cannot
// take the worker down.
func (s *Scheduler) call(task Task) (v any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.log.Error().Interface("panic", rv).Msg("recovered from task panic")
			v, err = nil, &PanicError{Value: rv}
		}
	}()
	return task()
}

// Do submits fn to s and waits for its typed result. If ctx ends first,
// Do returns ctx.Err() and fn still runs in its turn.
func Do[T any](ctx context.Context, s *Scheduler, fn func() (T, error)) (T, error) {
	f := s.Submit(func() (any, error) {
		return fn()
	})
	var zero T
	v, err := f.WaitContext(ctx)
	if v == nil {
		return zero, err
	}
	return v.(T), err
}
