package molecule

import (
	"errors"
	"testing"
	"time"
)

func TestLifecycle_MountOncePerEntry(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))
	userScope := NewScopeToken[string]("user")

	mounts := []string{}
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		user, err := ScopeValue(ctx, userScope)
		if err != nil {
			return "", err
		}
		ctx.OnMount(func() func() error {
			mounts = append(mounts, user)
			return nil
		})
		return user, nil
	})

	_, sub1, err := Use(inj, mol, WithScope(userScope, "jeffrey@example.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, sub2, err := Use(inj, mol, WithScope(userScope, "jeffrey@example.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(mounts) != 1 || mounts[0] != "jeffrey@example.com" {
		t.Errorf("expected exactly one mount with jeffrey@example.com, got %v", mounts)
	}

	sub1.Release()
	sub2.Release()
}

func TestLifecycle_TwoConsumersOneMountTwoUnmountCalls(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))
	userScope := NewScopeToken[string]("user")

	mounts := []string{}
	unmounts := []string{}
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		user, err := ScopeValue(ctx, userScope)
		if err != nil {
			return "", err
		}
		ctx.OnMount(func() func() error {
			mounts = append(mounts, user)
			return func() error {
				unmounts = append(unmounts, "mount-teardown")
				return nil
			}
		})
		ctx.OnUnmount(func() error {
			unmounts = append(unmounts, "explicit-unmount")
			return nil
		})
		return user, nil
	})

	_, sub1, err := Use(inj, mol, WithScope(userScope, "jeffrey@example.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, sub2, err := Use(inj, mol, WithScope(userScope, "jeffrey@example.com"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(mounts) != 1 || mounts[0] != "jeffrey@example.com" {
		t.Fatalf("expected one mount with jeffrey@example.com, got %v", mounts)
	}

	sub1.Release()
	sched.Flush()
	if len(unmounts) != 0 {
		t.Fatalf("unmount fired while a consumer remains: %v", unmounts)
	}

	sub2.Release()
	sched.Flush()

	// mount-returned teardown first, explicit unmount callback second
	if len(unmounts) != 2 || unmounts[0] != "mount-teardown" || unmounts[1] != "explicit-unmount" {
		t.Errorf("unexpected unmount order: %v", unmounts)
	}
}

func TestLifecycle_DeferredTeardownCancelledByReuse(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	mounts := 0
	unmounts := 0
	type session struct{ id int }
	mol := New(func(ctx *MoleculeCtx) (*session, error) {
		ctx.OnMount(func() func() error {
			mounts++
			return func() error {
				unmounts++
				return nil
			}
		})
		return &session{id: mounts}, nil
	})

	first, sub1, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub1.Release()

	// a new subscriber arrives before the deferred check runs
	second, sub2, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sched.Flush()

	if first != second {
		t.Error("expected the original entry to be reused")
	}
	if mounts != 1 {
		t.Errorf("expected 1 mount, got %d", mounts)
	}
	if unmounts != 0 {
		t.Errorf("expected 0 unmounts, got %d", unmounts)
	}

	sub2.Release()
	sched.Flush()
	if unmounts != 1 {
		t.Errorf("expected 1 unmount after final release, got %d", unmounts)
	}
}

func TestLifecycle_DoubleInvocationPattern(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	mounts := 0
	unmounts := 0
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnMount(func() func() error {
			mounts++
			return func() error {
				unmounts++
				return nil
			}
		})
		return "value", nil
	})

	// setup, setup, teardown, teardown within one synchronous burst
	_, sub1, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, sub2, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub1.Release()
	sub2.Release()
	sched.Flush()

	if mounts != 1 {
		t.Errorf("expected exactly 1 mount, got %d", mounts)
	}
	if unmounts != 1 {
		t.Errorf("expected exactly 1 unmount, got %d", unmounts)
	}
}

func TestLifecycle_DestroyedKeyCreatesFreshEntry(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	mounts := 0
	type box struct{ n int }
	mol := New(func(ctx *MoleculeCtx) (*box, error) {
		ctx.OnMount(func() func() error {
			mounts++
			return nil
		})
		return &box{n: mounts}, nil
	})

	first, sub1, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub1.Release()
	sched.Flush()

	if inj.Live() != 0 {
		t.Fatalf("expected entry destroyed, got %d live", inj.Live())
	}

	second, sub2, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer sub2.Release()

	if first == second {
		t.Error("destroyed key must yield a brand-new entry")
	}
	if mounts != 2 {
		t.Errorf("expected mount to re-run on the fresh entry, got %d", mounts)
	}
}

func TestLifecycle_DoubleReleaseIsNoOp(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	unmounts := 0
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnUnmount(func() error {
			unmounts++
			return nil
		})
		return "value", nil
	})

	_, sub1, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, sub2, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := sub1.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := sub1.Release(); err != nil {
		t.Fatalf("double release must be a no-op, got %v", err)
	}
	if !sub1.Released() {
		t.Error("expected subscription to report released")
	}
	sched.Flush()

	// sub2 still holds the entry despite the double release of sub1
	if unmounts != 0 {
		t.Errorf("double release over-decremented: %d unmounts", unmounts)
	}

	sub2.Release()
	sched.Flush()
	if unmounts != 1 {
		t.Errorf("expected 1 unmount, got %d", unmounts)
	}
}

func TestLifecycle_TeardownLIFOWithinGroups(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	order := []string{}
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnMount(func() func() error {
			return func() error {
				order = append(order, "teardown-1")
				return nil
			}
		})
		ctx.OnMount(func() func() error {
			return func() error {
				order = append(order, "teardown-2")
				return nil
			}
		})
		ctx.OnUnmount(func() error {
			order = append(order, "unmount-1")
			return nil
		})
		ctx.OnUnmount(func() error {
			order = append(order, "unmount-2")
			return nil
		})
		return "value", nil
	})

	_, sub, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub.Release()
	sched.Flush()

	expected := []string{"teardown-2", "teardown-1", "unmount-2", "unmount-1"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d callbacks, got %d (%v)", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("at index %d: expected %s, got %s", i, want, order[i])
		}
	}
}

func TestLifecycle_TeardownErrorAbortsRemaining(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	var captured *TeardownError
	inj.UseExtension(&teardownRecorder{
		BaseExtension: NewBaseExtension("recorder"),
		capture:       func(err *TeardownError) { captured = err },
	})

	ran := []string{}
	boom := errors.New("teardown boom")
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnMount(func() func() error {
			return func() error {
				ran = append(ran, "teardown")
				return boom
			}
		})
		ctx.OnUnmount(func() error {
			ran = append(ran, "unmount")
			return nil
		})
		return "value", nil
	})

	_, sub, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub.Release()
	sched.Flush()

	if len(ran) != 1 || ran[0] != "teardown" {
		t.Errorf("expected the failing teardown to abort remaining callbacks, got %v", ran)
	}
	if captured == nil {
		t.Fatal("expected the teardown error to reach the extension")
	}
	if !errors.Is(captured, boom) {
		t.Errorf("expected boom in chain, got %v", captured)
	}
	if captured.Context != "deferred" {
		t.Errorf("expected deferred context, got %q", captured.Context)
	}
	if inj.Live() != 0 {
		t.Errorf("entry must still be removed after a teardown error, got %d live", inj.Live())
	}
}

func TestLifecycle_ParentKeepsChildAlive(t *testing.T) {
	sched := NewManualScheduler()
	inj := NewInjector(WithScheduler(sched))

	order := []string{}
	childMol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnUnmount(func() error {
			order = append(order, "child")
			return nil
		})
		return "child", nil
	})
	parentMol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnUnmount(func() error {
			order = append(order, "parent")
			return nil
		})
		return Mol(ctx, childMol)
	})

	_, sub, err := Use(inj, parentMol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sub.Release()
	sched.Flush()

	// parent tears down first, dropping its hold on the child; the child's
	// own deferred check runs in the same flush
	if len(order) != 2 || order[0] != "parent" || order[1] != "child" {
		t.Errorf("unexpected teardown order: %v", order)
	}
	if inj.Live() != 0 {
		t.Errorf("expected empty cache, got %d live", inj.Live())
	}
}

func TestLifecycle_TimerSchedulerEventuallyTearsDown(t *testing.T) {
	inj := NewInjector() // default timer scheduler, zero delay

	done := make(chan struct{})
	mol := New(func(ctx *MoleculeCtx) (string, error) {
		ctx.OnUnmount(func() error {
			close(done)
			return nil
		})
		return "value", nil
	})

	_, sub, err := Use(inj, mol)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sub.Release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred teardown never fired")
	}
}

type teardownRecorder struct {
	BaseExtension
	capture func(*TeardownError)
}

func (e *teardownRecorder) OnTeardownError(err *TeardownError) bool {
	e.capture(err)
	return true
}
