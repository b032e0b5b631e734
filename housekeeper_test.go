package respool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tsurugi-dev/respool"
	"github.com/tsurugi-dev/respool/mock"
)

func TestHousekeeperToppsUpToMinSize(t *testing.T) {
	fun, built := mock.NewFactory()

	p, err := respool.New(respool.Config{
		Fun:     fun,
		MinSize: 2,
		MaxSize: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close(time.Second) })

	if len(*built) != 2 {
		t.Fatalf("expected New with MinSize=2 to eagerly build 2 resources, got %d", len(*built))
	}

	s := p.Stats()
	if s.NAvail != 2 {
		t.Errorf("expected 2 available resources, got %d", s.NAvail)
	}
}

func TestHousekeeperEvictsIdleResource(t *testing.T) {
	fun, built := mock.NewFactory()

	p, err := respool.New(respool.Config{
		Fun:           fun,
		MinSize:       0,
		MaxSize:       1,
		Closer:        mock.Closer,
		MaxAvailDelay: 40 * time.Millisecond,
		HKDelay:       10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close(time.Second) })

	obj, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(obj)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if (*built)[0].Closes() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if (*built)[0].Closes() != 1 {
		t.Fatalf("expected the idle resource to be closed exactly once, got %d", (*built)[0].Closes())
	}

	obj2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if obj == obj2 {
		t.Error("expected a fresh resource after idle eviction")
	}
}

func TestReloadGuardDoesNotCollideAcrossPoolsSharingAFactoryLiteral(t *testing.T) {
	fun, built := mock.NewFactory()

	newPool := func() (*respool.Pool, error) {
		return respool.New(respool.Config{
			Fun:           fun,
			MinSize:       0,
			MaxSize:       1,
			Closer:        mock.Closer,
			MaxAvailDelay: 30 * time.Millisecond,
			HKDelay:       10 * time.Millisecond,
		})
	}

	// Both pools are built from closures returned by the same call to
	// mock.NewFactory, so they share one underlying func literal and thus
	// one code pointer. Config.ReloadGuardKey is left unset on both,
	// which must leave the guard inert: each pool gets its own running
	// housekeeper regardless of Fun's identity.
	p1, err := newPool()
	if err != nil {
		t.Fatalf("New p1: %v", err)
	}
	t.Cleanup(func() { p1.Close(time.Second) })

	p2, err := newPool()
	if err != nil {
		t.Fatalf("New p2: %v", err)
	}
	t.Cleanup(func() { p2.Close(time.Second) })

	obj1, err := p1.Acquire(context.Background())
	if err != nil {
		t.Fatalf("p1 Acquire: %v", err)
	}
	p1.Release(obj1)

	obj2, err := p2.Acquire(context.Background())
	if err != nil {
		t.Fatalf("p2 Acquire: %v", err)
	}
	p2.Release(obj2)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if p1.Stats().NDestroyed > 0 && p2.Stats().NDestroyed > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if n := p1.Stats().NDestroyed; n != 1 {
		t.Errorf("expected p1's housekeeper to evict its idle resource, got n_destroyed=%d", n)
	}
	if n := p2.Stats().NDestroyed; n != 1 {
		t.Errorf("expected p2's housekeeper to run independently of p1's and evict its own idle resource, got n_destroyed=%d", n)
	}
	if len(*built) != 2 {
		t.Errorf("expected each pool to have built its own resource, got %d built total", len(*built))
	}
}

func TestReloadGuardSuppressesSecondPoolSharingAnExplicitKey(t *testing.T) {
	fun, _ := mock.NewFactory()

	newPool := func() (*respool.Pool, error) {
		return respool.New(respool.Config{
			Fun:            fun,
			MinSize:        0,
			MaxSize:        1,
			Closer:         mock.Closer,
			MaxAvailDelay:  30 * time.Millisecond,
			HKDelay:        10 * time.Millisecond,
			ReloadGuardKey: "reload-guard-test",
		})
	}

	p1, err := newPool()
	if err != nil {
		t.Fatalf("New p1: %v", err)
	}
	t.Cleanup(func() { p1.Close(time.Second) })

	p2, err := newPool()
	if err != nil {
		t.Fatalf("New p2: %v", err)
	}
	t.Cleanup(func() { p2.Close(time.Second) })

	obj1, err := p1.Acquire(context.Background())
	if err != nil {
		t.Fatalf("p1 Acquire: %v", err)
	}
	p1.Release(obj1)

	obj2, err := p2.Acquire(context.Background())
	if err != nil {
		t.Fatalf("p2 Acquire: %v", err)
	}
	p2.Release(obj2)

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && p1.Stats().NDestroyed == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if n := p1.Stats().NDestroyed; n != 1 {
		t.Fatalf("expected p1 (first with this ReloadGuardKey) to run its housekeeper and evict, got n_destroyed=%d", n)
	}
	// Give p2's (suppressed) housekeeper every chance to have run anyway.
	time.Sleep(100 * time.Millisecond)
	if n := p2.Stats().NDestroyed; n != 0 {
		t.Errorf("expected p2's housekeeper to be suppressed by the shared ReloadGuardKey, got n_destroyed=%d", n)
	}
}

func TestHousekeeperKillsLongHeldResource(t *testing.T) {
	fun, built := mock.NewFactory()

	p, err := respool.New(respool.Config{
		Fun:               fun,
		MinSize:           0,
		MaxSize:           1,
		Closer:            mock.Closer,
		MaxUsingDelayKill: 30 * time.Millisecond,
		HKDelay:           10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close(time.Second) })

	obj, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if p.Stats().NKilled > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	s := p.Stats()
	if s.NKilled != 1 {
		t.Fatalf("expected 1 killed resource, got %d", s.NKilled)
	}
	if s.NBusy != 0 {
		t.Errorf("expected the killed resource to be off the busy registry, got %d busy", s.NBusy)
	}

	// The original holder's eventual Release should now be a bad return,
	// not a panic or a double-count.
	p.Release(obj)
	if p.Stats().NBadReturns != 1 {
		t.Error("expected the stale Release to be counted as a bad return")
	}
	if len(*built) != 1 {
		t.Errorf("expected only 1 resource built, got %d", len(*built))
	}
}

func TestHousekeeperRunsHealthEveryHealthFreqSweeps(t *testing.T) {
	fun, _ := mock.NewFactory()

	var healthCalls atomic.Int32
	p, err := respool.New(respool.Config{
		Fun:        fun,
		MinSize:    1,
		MaxSize:    1,
		HKDelay:    10 * time.Millisecond,
		HealthFreq: 2,
		Health: func(obj any) bool {
			healthCalls.Add(1)
			return true
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close(time.Second) })

	time.Sleep(120 * time.Millisecond)

	if healthCalls.Load() == 0 {
		t.Error("expected at least one health probe to have run")
	}
}

func TestHousekeeperLogsLongHoldWarning(t *testing.T) {
	mock.ResetLog()
	t.Cleanup(mock.ResetLog)

	fun, _ := mock.NewFactory()

	p, err := respool.New(respool.Config{
		Fun:           fun,
		MinSize:       0,
		MaxSize:       1,
		MaxUsingDelay: 20 * time.Millisecond,
		HKDelay:       10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close(time.Second) })

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	var event mock.Event
	var found bool
	for time.Now().Before(deadline) && !found {
		event, found = mock.TestLog.EventByMessage("resource held longer than MaxUsingDelay")
		if !found {
			time.Sleep(5 * time.Millisecond)
		}
	}

	if !found {
		t.Fatal("expected a long-hold warning to be logged")
	}
	if !event.HasStr("pool_id", p.Stats().PoolID) {
		t.Error("expected the warning to carry the pool's pool_id")
	}
	if !event.HasDur("held_for", 20*time.Millisecond, 200*time.Millisecond) {
		t.Errorf("expected held_for near 20ms, got %v", event["held_for"])
	}
}
