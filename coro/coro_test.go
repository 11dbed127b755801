package coro

import "testing"

func TestResumeYieldRoundTrip(t *testing.T) {
	co := Spawn(func(co *Coroutine, initial any) (any, error) {
		n := initial.(int)
		got := co.Yield(n + 1)
		n2 := got.(int)
		return n2 * 2, nil
	})

	out, done, err := co.Resume(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Fatalf("expected coroutine to be suspended, not done")
	}
	if out.(int) != 11 {
		t.Fatalf("want 11, got %v", out)
	}

	out, done, err = co.Resume(5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Fatalf("expected coroutine to be done")
	}
	if out.(int) != 10 {
		t.Fatalf("want 10, got %v", out)
	}
}

func TestResumeAfterDoneIsANoop(t *testing.T) {
	co := Spawn(func(co *Coroutine, initial any) (any, error) {
		return initial, nil
	})
	if _, done, _ := co.Resume(1); !done {
		t.Fatalf("expected immediate completion")
	}
	out, done, err := co.Resume(99)
	if !done || out != nil || err != nil {
		t.Fatalf("want (nil, true, nil) after completion, got (%v, %v, %v)", out, done, err)
	}
}

func TestCoroutinePropagatesError(t *testing.T) {
	sentinel := errTest{"boom"}
	co := Spawn(func(co *Coroutine, initial any) (any, error) {
		return nil, sentinel
	})
	_, done, err := co.Resume(nil)
	if !done {
		t.Fatalf("expected completion")
	}
	if err != sentinel {
		t.Fatalf("want sentinel error, got %v", err)
	}
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
