package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestScheduler(cooldown time.Duration) *Scheduler {
	return New(cooldown, zerolog.Nop())
}

// waitIdle polls until the worker has exited or the deadline passes.
func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !s.Stats().Running {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduler worker did not go idle")
}

type span struct {
	name       string
	start, end time.Time
}

// recorder collects task start/end times from inside tasks.
type recorder struct {
	mu    sync.Mutex
	spans []span
}

func (r *recorder) task(name string, d time.Duration, err error) Task {
	return func() (any, error) {
		start := time.Now()
		time.Sleep(d)
		end := time.Now()
		r.mu.Lock()
		r.spans = append(r.spans, span{name: name, start: start, end: end})
		r.mu.Unlock()
		return name, err
	}
}

func (r *recorder) snapshot() []span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]span(nil), r.spans...)
}

func TestNew(t *testing.T) {
	t.Run("default_cooldown", func(t *testing.T) {
		s := newTestScheduler(0)
		if s.Cooldown() != DefaultCooldown {
			t.Errorf("Cooldown = %v, want %v", s.Cooldown(), DefaultCooldown)
		}
		if DefaultCooldown != 3*time.Second {
			t.Errorf("DefaultCooldown = %v, want 3s", DefaultCooldown)
		}
	})

	t.Run("custom_cooldown", func(t *testing.T) {
		s := newTestScheduler(250 * time.Millisecond)
		if s.Cooldown() != 250*time.Millisecond {
			t.Errorf("Cooldown = %v, want 250ms", s.Cooldown())
		}
	})

	t.Run("idle_without_submissions", func(t *testing.T) {
		s := newTestScheduler(10 * time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		st := s.Stats()
		if st.Running || st.CoolingDown || st.Pending != 0 {
			t.Errorf("Stats = %+v, want idle", st)
		}
		if s.gate.timer != nil || s.gate.armedN != 0 {
			t.Error("no timer should exist before the first task")
		}
	})
}

func TestSubmit_ResolvesValue(t *testing.T) {
	s := newTestScheduler(10 * time.Millisecond)
	v, err := s.Submit(func() (any, error) { return 42, nil }).Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v != 42 {
		t.Errorf("value = %v, want 42", v)
	}
}

func TestSubmit_ErrorPassedThroughUnchanged(t *testing.T) {
	s := newTestScheduler(10 * time.Millisecond)
	sentinel := errors.New("backend down")

	_, err := s.Submit(func() (any, error) { return nil, sentinel }).Wait()
	if err != sentinel {
		t.Errorf("err = %v, want the task's own error value", err)
	}
}

func TestSubmit_FIFOOrder(t *testing.T) {
	s := newTestScheduler(5 * time.Millisecond)
	rec := &recorder{}
	names := []string{"a", "b", "c", "d", "e", "f"}

	futures := make([]*Future, len(names))
	for i, n := range names {
		futures[i] = s.Submit(rec.task(n, time.Millisecond, nil))
	}
	for i, f := range futures {
		v, err := f.Wait()
		if err != nil {
			t.Fatalf("task %s: %v", names[i], err)
		}
		if v != names[i] {
			t.Errorf("future %d resolved to %v, want %s", i, v, names[i])
		}
	}

	spans := rec.snapshot()
	if len(spans) != len(names) {
		t.Fatalf("ran %d tasks, want %d", len(spans), len(names))
	}
	for i, sp := range spans {
		if sp.name != names[i] {
			t.Errorf("execution %d = %s, want %s", i, sp.name, names[i])
		}
	}
}

func TestSubmit_NoOverlapAndCooldownGap(t *testing.T) {
	cooldown := 40 * time.Millisecond
	s := newTestScheduler(cooldown)
	rec := &recorder{}

	var futures []*Future
	for _, n := range []string{"a", "b", "c", "d"} {
		futures = append(futures, s.Submit(rec.task(n, 5*time.Millisecond, nil)))
	}
	for _, f := range futures {
		f.Wait()
	}

	spans := rec.snapshot()
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.start.Before(prev.end) {
			t.Errorf("task %s started before %s ended", cur.name, prev.name)
		}
		if gap := cur.start.Sub(prev.end); gap < cooldown {
			t.Errorf("gap between %s and %s = %v, want >= %v", prev.name, cur.name, gap, cooldown)
		}
	}
}

func TestSubmit_ConcurrentSubmittersNeverOverlap(t *testing.T) {
	s := newTestScheduler(2 * time.Millisecond)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	task := func() (any, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Submit(task).Wait()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxSeen)
	}
	if st := s.Stats(); st.Completed != 20 {
		t.Errorf("Completed = %d, want 20", st.Completed)
	}
}

func TestSubmit_FailureDoesNotStopQueue(t *testing.T) {
	s := newTestScheduler(5 * time.Millisecond)
	boom := errors.New("boom")

	f1 := s.Submit(func() (any, error) { return nil, boom })
	f2 := s.Submit(func() (any, error) { panic("kaboom") })
	f3 := s.Submit(func() (any, error) { return "ok", nil })

	if _, err := f1.Wait(); !errors.Is(err, boom) {
		t.Errorf("f1 err = %v, want boom", err)
	}
	_, err := f2.Wait()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("f2 err = %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" {
		t.Errorf("panic value = %v, want kaboom", pe.Value)
	}
	v, err := f3.Wait()
	if err != nil || v != "ok" {
		t.Errorf("f3 = (%v, %v), want (ok, nil)", v, err)
	}

	waitIdle(t, s)
	st := s.Stats()
	if st.Completed != 1 || st.Failed != 2 {
		t.Errorf("Stats = %+v, want 1 completed, 2 failed", st)
	}
}

// Three 10ms tasks with a 100ms cooldown take at least 2×100ms + 3×10ms.
func TestSubmit_ThreeTaskScenario(t *testing.T) {
	s := newTestScheduler(100 * time.Millisecond)
	rec := &recorder{}

	start := time.Now()
	fa := s.Submit(rec.task("A", 10*time.Millisecond, nil))
	fb := s.Submit(rec.task("B", 10*time.Millisecond, nil))
	fc := s.Submit(rec.task("C", 10*time.Millisecond, nil))

	if _, err := fa.Wait(); err != nil {
		t.Fatalf("A: %v", err)
	}
	select {
	case <-fb.Done():
		t.Error("B resolved before the cooldown after A elapsed")
	default:
	}
	fb.Wait()
	select {
	case <-fc.Done():
		t.Error("C resolved before the cooldown after B elapsed")
	default:
	}
	fc.Wait()
	elapsed := time.Since(start)

	if min := 2*100*time.Millisecond + 3*10*time.Millisecond; elapsed < min {
		t.Errorf("elapsed = %v, want >= %v", elapsed, min)
	}
	spans := rec.snapshot()
	for i, want := range []string{"A", "B", "C"} {
		if spans[i].name != want {
			t.Errorf("execution %d = %s, want %s", i, spans[i].name, want)
		}
	}
}

func TestSubmit_WorkerRestartsAfterIdle(t *testing.T) {
	cooldown := 200 * time.Millisecond
	s := newTestScheduler(cooldown)
	rec := &recorder{}

	s.Submit(rec.task("first", 0, nil)).Wait()
	waitIdle(t, s)

	if !s.Stats().CoolingDown {
		t.Error("cooldown should still be active right after a lone task")
	}

	s.Submit(rec.task("second", 0, nil)).Wait()

	spans := rec.snapshot()
	if len(spans) != 2 {
		t.Fatalf("ran %d tasks, want 2", len(spans))
	}
	if gap := spans[1].start.Sub(spans[0].end); gap < cooldown {
		t.Errorf("gap across worker restart = %v, want >= %v", gap, cooldown)
	}
}

func TestSubmit_CooldownExpiresWhileIdle(t *testing.T) {
	s := newTestScheduler(10 * time.Millisecond)
	s.Submit(func() (any, error) { return nil, nil }).Wait()
	time.Sleep(50 * time.Millisecond)

	if s.Stats().CoolingDown {
		t.Fatal("cooldown should have expired")
	}
	start := time.Now()
	s.Submit(func() (any, error) { return nil, nil }).Wait()
	if d := time.Since(start); d > 5*time.Millisecond+s.Cooldown() {
		t.Errorf("task after expired cooldown took %v to run", d)
	}
}

func TestFuture_WaitContext(t *testing.T) {
	s := newTestScheduler(10 * time.Millisecond)
	release := make(chan struct{})
	ran := make(chan struct{})

	blocker := s.Submit(func() (any, error) {
		<-release
		return nil, nil
	})
	queued := s.Submit(func() (any, error) {
		close(ran)
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := queued.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitContext err = %v, want deadline exceeded", err)
	}

	close(release)
	blocker.Wait()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned task should still run")
	}
	if v, _ := queued.Wait(); v != "late" {
		t.Errorf("value = %v, want late", v)
	}
}

func TestDo(t *testing.T) {
	s := newTestScheduler(5 * time.Millisecond)
	ctx := context.Background()

	t.Run("typed_value", func(t *testing.T) {
		got, err := Do(ctx, s, func() (string, error) { return "hello", nil })
		if err != nil || got != "hello" {
			t.Errorf("Do = (%q, %v), want (hello, nil)", got, err)
		}
	})

	t.Run("value_and_error_passed_through", func(t *testing.T) {
		want := errors.New("nope")
		got, err := Do(ctx, s, func() (int, error) { return 7, want })
		if err != want {
			t.Errorf("err = %v, want %v", err, want)
		}
		if got != 7 {
			t.Errorf("value = %d, want the task's own value 7", got)
		}
	})

	t.Run("nil_interface_result", func(t *testing.T) {
		got, err := Do(ctx, s, func() (error, error) { return nil, nil })
		if err != nil || got != nil {
			t.Errorf("Do = (%v, %v), want (nil, nil)", got, err)
		}
	})
}
