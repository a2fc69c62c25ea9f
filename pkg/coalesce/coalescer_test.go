package coalesce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePublisher records publishes and optionally blocks or fails them.
type fakePublisher struct {
	mu    sync.Mutex
	calls []map[string]any
	err   error

	// entered receives one value when a publish begins.
	entered chan struct{}

	// block, when non-nil, stalls every publish until closed.
	block chan struct{}
}

func (p *fakePublisher) Publish(state map[string]any) error {
	p.mu.Lock()
	p.calls = append(p.calls, state)
	err := p.err
	entered := p.entered
	block := p.block
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePublisher) call(i int) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

// waitErr waits for a completion outcome or fails the test.
func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion callback")
		return nil
	}
}

func TestSingleMutationPublishes(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c.Mutate(map[string]any{"foo": true}, func(err error) { done <- err })

	if err := waitErr(t, done); err != nil {
		t.Fatalf("callback error = %v, want nil", err)
	}
	if pub.callCount() != 1 {
		t.Fatalf("publish count = %d, want 1", pub.callCount())
	}
	if pub.call(0)["foo"] != true {
		t.Errorf("published state = %v, want foo=true", pub.call(0))
	}
}

func TestDebounceCollapsesMutations(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(50*time.Millisecond))

	done := make(chan error, 3)
	c.Mutate(map[string]any{"a": 1, "shared": "first"}, func(err error) { done <- err })
	c.Mutate(map[string]any{"b": 2}, func(err error) { done <- err })
	c.Mutate(map[string]any{"shared": "last"}, func(err error) { done <- err })

	for i := 0; i < 3; i++ {
		if err := waitErr(t, done); err != nil {
			t.Fatalf("callback %d error = %v, want nil", i, err)
		}
	}

	if pub.callCount() != 1 {
		t.Fatalf("publish count = %d, want 1 (debounce collapsing)", pub.callCount())
	}

	state := pub.call(0)
	if state["a"] != 1 || state["b"] != 2 {
		t.Errorf("published state = %v, want a=1 b=2", state)
	}
	if state["shared"] != "last" {
		t.Errorf("shared = %v, want left-to-right overwrite to \"last\"", state["shared"])
	}
}

func TestCallbacksShareOutcomeInOrder(t *testing.T) {
	errPublish := errors.New("broker unreachable")
	pub := &fakePublisher{err: errPublish}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	var mu sync.Mutex
	var order []int
	var errs []error
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		i := i
		c.Mutate(map[string]any{"k": i}, func(err error) {
			mu.Lock()
			order = append(order, i)
			errs = append(errs, err)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for callbacks")
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 3 {
		t.Fatalf("resolved %d callbacks, want 3 (exactly once each)", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("resolution order = %v, want FIFO [0 1 2]", order)
			break
		}
	}
	for i, err := range errs {
		if !errors.Is(err, errPublish) {
			t.Errorf("callback %d error = %v, want shared %v", i, err, errPublish)
		}
	}
}

func TestSeparateQuietPeriodsSeparateFlushes(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c.Mutate(map[string]any{"first": true}, func(err error) { done <- err })
	if err := waitErr(t, done); err != nil {
		t.Fatalf("first flush error = %v", err)
	}

	c.Mutate(map[string]any{"second": true}, func(err error) { done <- err })
	if err := waitErr(t, done); err != nil {
		t.Fatalf("second flush error = %v", err)
	}

	if pub.callCount() != 2 {
		t.Fatalf("publish count = %d, want 2", pub.callCount())
	}

	// The snapshot accumulates across flushes: the second publish carries
	// the merged state of both quiet periods.
	second := pub.call(1)
	if second["first"] != true || second["second"] != true {
		t.Errorf("second published state = %v, want both keys", second)
	}
}

func TestEmptyPartialStillFlushes(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c.Mutate(map[string]any{}, func(err error) { done <- err })

	if err := waitErr(t, done); err != nil {
		t.Fatalf("callback error = %v, want nil", err)
	}
	if pub.callCount() != 1 {
		t.Fatalf("publish count = %d, want 1", pub.callCount())
	}
	if len(pub.call(0)) != 0 {
		t.Errorf("published state = %v, want empty", pub.call(0))
	}
}

func TestMutationRestartsTimer(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(100*time.Millisecond))

	done := make(chan error, 2)
	c.Mutate(map[string]any{"a": 1}, func(err error) { done <- err })
	time.Sleep(60 * time.Millisecond)
	c.Mutate(map[string]any{"b": 2}, func(err error) { done <- err })

	// 120ms after the first mutation, but only 60ms after the rearm:
	// the restarted timer must not have fired yet.
	time.Sleep(60 * time.Millisecond)
	if n := pub.callCount(); n != 0 {
		t.Fatalf("publish count = %d before quiet period elapsed, want 0", n)
	}

	for i := 0; i < 2; i++ {
		if err := waitErr(t, done); err != nil {
			t.Fatalf("callback error = %v", err)
		}
	}
	if pub.callCount() != 1 {
		t.Fatalf("publish count = %d, want 1", pub.callCount())
	}
}

func TestMutationDuringInflightPublishJoinsNextBatch(t *testing.T) {
	pub := &fakePublisher{
		entered: make(chan struct{}, 2),
		block:   make(chan struct{}),
	}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	var mu sync.Mutex
	var order []string
	record := func(name string, signal chan struct{}) CompleteFunc {
		return func(error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			signal <- struct{}{}
		}
	}

	doneA := make(chan struct{}, 1)
	doneB := make(chan struct{}, 1)

	c.Mutate(map[string]any{"a": 1}, record("a", doneA))

	// Wait for the first flush to be in flight, then mutate while the
	// publish is stalled.
	select {
	case <-pub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first publish never started")
	}
	c.Mutate(map[string]any{"b": 2}, record("b", doneB))

	// The racing mutation must not join the in-flight batch.
	select {
	case <-doneB:
		t.Fatal("callback b resolved by the in-flight flush")
	case <-time.After(50 * time.Millisecond):
	}

	close(pub.block)

	select {
	case <-doneA:
	case <-time.After(2 * time.Second):
		t.Fatal("callback a never resolved")
	}
	select {
	case <-doneB:
	case <-time.After(2 * time.Second):
		t.Fatal("callback b never resolved")
	}

	if pub.callCount() != 2 {
		t.Fatalf("publish count = %d, want 2", pub.callCount())
	}
	if _, ok := pub.call(0)["b"]; ok {
		t.Error("first publish contains the racing mutation's key")
	}
	if pub.call(1)["b"] != 2 {
		t.Errorf("second publish = %v, want b=2", pub.call(1))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("resolution order = %v, want [a b]", order)
	}
}

func TestCallbackNeverSynchronous(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(50*time.Millisecond))

	var resolved atomic.Bool
	c.Mutate(map[string]any{"x": 1}, func(error) { resolved.Store(true) })

	if resolved.Load() {
		t.Fatal("callback resolved synchronously within Mutate")
	}
}

func TestPendingCount(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(100*time.Millisecond))

	done := make(chan error, 2)
	c.Mutate(map[string]any{"a": 1}, func(err error) { done <- err })
	c.Mutate(map[string]any{"b": 2}, func(err error) { done <- err })

	if got := c.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	waitErr(t, done)
	waitErr(t, done)

	if got := c.Pending(); got != 0 {
		t.Errorf("Pending() = %d after flush, want 0", got)
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c.Mutate(map[string]any{"a": 1}, func(err error) { done <- err })
	waitErr(t, done)

	snap := c.Snapshot()
	snap["a"] = "tampered"

	if c.Snapshot()["a"] != 1 {
		t.Error("mutating the returned snapshot changed internal state")
	}
}

func TestReconcileReplacesSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c.Mutate(map[string]any{"local": true}, func(err error) { done <- err })
	waitErr(t, done)

	c.Reconcile(map[string]any{"remote": true})

	snap := c.Snapshot()
	if _, ok := snap["local"]; ok {
		t.Error("reconciled snapshot retains pre-reconcile key")
	}
	if snap["remote"] != true {
		t.Errorf("snapshot = %v, want remote=true", snap)
	}

	// Subsequent mutations merge onto the reconciled base.
	c.Mutate(map[string]any{"local": "again"}, func(err error) { done <- err })
	waitErr(t, done)

	state := pub.call(pub.callCount() - 1)
	if state["remote"] != true || state["local"] != "again" {
		t.Errorf("published state = %v, want reconciled base plus merge", state)
	}
}

func TestStopCancelsArmedTimer(t *testing.T) {
	pub := &fakePublisher{}
	c := New(pub, WithQuietPeriod(20*time.Millisecond))

	c.Mutate(map[string]any{"a": 1}, func(error) {
		t.Error("callback resolved after Stop")
	})
	c.Stop()

	time.Sleep(100 * time.Millisecond)

	if pub.callCount() != 0 {
		t.Errorf("publish count = %d after Stop, want 0", pub.callCount())
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (unresolved by design)", c.Pending())
	}
}

func TestInstancesShareNothing(t *testing.T) {
	pub1 := &fakePublisher{}
	pub2 := &fakePublisher{}
	c1 := New(pub1, WithQuietPeriod(20*time.Millisecond))
	c2 := New(pub2, WithQuietPeriod(20*time.Millisecond))

	done := make(chan error, 1)
	c1.Mutate(map[string]any{"only": "c1"}, func(err error) { done <- err })
	waitErr(t, done)

	if len(c2.Snapshot()) != 0 {
		t.Errorf("c2 snapshot = %v, want empty (no cross-instance aliasing)", c2.Snapshot())
	}
	if pub2.callCount() != 0 {
		t.Errorf("c2 publisher called %d times, want 0", pub2.callCount())
	}
}
