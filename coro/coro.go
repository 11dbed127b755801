// Package coro implements the cooperative coroutine primitive the Node
// Compiler runs on (§4.8, §5): "a family of coroutines; suspension happens
// at every call to another coroutine... used purely to convert unbounded
// recursion on the input tree into iteration on the heap." No example repo
// in the retrieval pack supplies a coroutine or generator library — Go has
// no native coroutine support either — so this one component is built
// directly on goroutines and channels, the standard idiom for expressing a
// rendezvous-style coroutine in Go. A Coroutine is resumed by exactly one
// goroutine at a time, enforced by construction: its two channels are
// unbuffered and touched only by the spawner and the coroutine's own
// goroutine, matching §5's single-threaded cooperative scheduling model.
package coro

// Coroutine is a single suspend/resume chain. Body runs on its own
// goroutine; every Yield call blocks that goroutine until Resume is called
// again. Every Resume/Yield pair is a strict send-then-receive rendezvous
// on one of the two channels, so control is always held by exactly one
// side.
type Coroutine struct {
	resumeCh chan any
	yieldCh  chan yielded
	done     bool
}

type yielded struct {
	value any
	err   error
	final bool
}

// Body is the function a coroutine runs. It receives the Coroutine handle
// so it can call Yield on itself, and the initial value passed to the
// first Resume call.
type Body func(co *Coroutine, initial any) (result any, err error)

// Spawn creates a coroutine running body on a new goroutine. The goroutine
// blocks immediately, waiting for the first Resume call to supply its
// initial value; nothing of body runs until then.
func Spawn(body Body) *Coroutine {
	co := &Coroutine{
		resumeCh: make(chan any),
		yieldCh:  make(chan yielded),
	}
	go func() {
		initial := <-co.resumeCh
		result, err := body(co, initial)
		co.yieldCh <- yielded{value: result, err: err, final: true}
	}()
	return co
}

// Yield suspends the calling coroutine, handing v to whoever called
// Resume, and blocks until the next Resume call, returning what it passed.
// Calling Yield from outside the coroutine's own goroutine is a misuse of
// the API and will deadlock, by design: §5 requires a coroutine is "resumed
// by its caller on await-equivalent boundaries", i.e. Yield always executes
// on the coroutine's own goroutine.
func (co *Coroutine) Yield(v any) any {
	co.yieldCh <- yielded{value: v}
	return <-co.resumeCh
}

// Resume sends in to the coroutine (as its initial value on the first
// call, or as what its last Yield call returns on every subsequent call)
// and blocks until the coroutine yields or returns. It reports whether the
// coroutine has now finished, and any error the coroutine body returned
// (only meaningful when done is true).
func (co *Coroutine) Resume(in any) (out any, done bool, err error) {
	if co.done {
		return nil, true, nil
	}
	co.resumeCh <- in
	y := <-co.yieldCh
	if y.final {
		co.done = true
	}
	return y.value, y.final, y.err
}

// Done reports whether the coroutine has already run to completion.
func (co *Coroutine) Done() bool { return co.done }
