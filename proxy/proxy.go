// Package proxy implements a thin, generic wrapper around a resource that
// may not exist yet: callers import the Proxy and call Get/Do against it
// before the underlying object is constructed, and the proxy resolves it
// on demand, scoped to shared, per-goroutine, or caller-defined identity.
package proxy

import (
	"context"
	"reflect"
	"sync"

	"github.com/tsurugi-dev/respool"
)

// Scope controls how many underlying objects a Proxy hands out: one
// shared instance, one per calling goroutine, or one per caller-defined
// task key.
type Scope int

const (
	// Shared is a single object, which must be safe for concurrent use.
	Shared Scope = iota
	// Thread hands out one object per calling goroutine.
	Thread
	// Task hands out one object per KeyFunc()-returned identity.
	Task
)

const sharedKey = "shared"

// Options configures New. Obj and Fun are mutually exclusive: set Obj for
// a pre-built, Shared-style object, or Fun to construct objects on
// demand. When Pool is non-nil, Fun-built objects are borrowed from a
// respool.Pool built from *Pool (with Fun installed as its factory)
// instead of being constructed directly once per scope key.
type Options[T any] struct {
	Obj     T
	Fun     func(id int64) (T, error)
	Scope   Scope
	KeyFunc func() string
	Pool    *respool.Config
}

// ProxyError reports a proxy-level misuse: an unset object, or a Task
// scope configured without a KeyFunc.
type ProxyError struct {
	Msg string
}

func (e *ProxyError) Error() string {
	return "proxy: " + e.Msg
}

// ErrNoObject is returned by Get/Do when the proxy has neither a static
// object nor a factory configured.
var ErrNoObject = &ProxyError{Msg: "no object set"}

// ErrNoKeyFunc is returned by New when Scope is Task and Options.KeyFunc
// is nil.
var ErrNoKeyFunc = &ProxyError{Msg: "Task scope requires a KeyFunc"}

// Proxy forwards Get/Do calls to an object resolved according to its
// Scope. A zero Proxy is not usable; construct one with New.
type Proxy[T any] struct {
	mu sync.Mutex

	scope   Scope
	keyFunc func() string

	hasObj bool
	obj    T

	fun  func(id int64) (T, error)
	pool *respool.Pool

	held     map[string]T
	building map[string]chan struct{}
	nextID   int64
}

// New constructs a Proxy per opts. For Scope == Task, opts.KeyFunc must
// be set.
func New[T any](opts Options[T]) (*Proxy[T], error) {
	if opts.Scope == Task && opts.KeyFunc == nil {
		return nil, ErrNoKeyFunc
	}

	p := &Proxy[T]{
		scope:    opts.Scope,
		held:     make(map[string]T),
		building: make(map[string]chan struct{}),
	}

	switch opts.Scope {
	case Shared:
		p.keyFunc = func() string { return sharedKey }
	case Thread:
		p.keyFunc = ThreadKey
	case Task:
		p.keyFunc = opts.KeyFunc
	}

	if opts.Fun != nil {
		p.fun = opts.Fun

		if opts.Pool != nil {
			cfg := *opts.Pool
			cfg.Fun = func(id int64) (any, error) {
				return opts.Fun(id)
			}

			pool, err := respool.New(cfg)
			if err != nil {
				return nil, err
			}
			p.pool = pool
		}
	} else if v := reflect.ValueOf(opts.Obj); v.IsValid() && !v.IsZero() {
		// Fun is nil and Obj is not the zero value for T: treat Obj as
		// the deliberately-set static object. A zero-valued Obj (e.g. a
		// nil pointer) with no Fun leaves the proxy unset, matching
		// ErrNoObject rather than silently handing out nil forever.
		p.obj = opts.Obj
		p.hasObj = true
	}

	return p, nil
}

// SetObj switches the proxy to hand out obj directly, displacing any
// factory or pool previously configured.
func (p *Proxy[T]) SetObj(obj T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.obj = obj
	p.hasObj = true
	p.fun = nil
	p.pool = nil
}

// SetFun switches the proxy to construct objects with fun, displacing any
// static object previously configured. Objects already held for a scope
// key are unaffected until that key's object is Returned and re-Gotten.
// SetFun does not create or change a pool: a proxy built with
// Options.Pool keeps acquiring through that pool, whose factory stays the
// Options.Fun it was built with, and a proxy built without Options.Fun
// gets no pool from SetFun and calls fun directly.
func (p *Proxy[T]) SetFun(fun func(id int64) (T, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fun = fun
	p.hasObj = false
}

// Get resolves the object for the caller's current scope, constructing or
// acquiring it if this is the first call for that scope key. Concurrent
// Gets for the same scope key (expected under Shared, and possible under
// Task if two callers' KeyFunc ever collides) do not race each other into
// building two objects for one key: the first caller to see a miss claims
// the key by registering a "building" channel, and every other caller for
// that key waits on it instead of also calling fun/AcquireAs.
func (p *Proxy[T]) Get(ctx context.Context) (T, error) {
	for {
		p.mu.Lock()

		if p.hasObj {
			obj := p.obj
			p.mu.Unlock()
			return obj, nil
		}

		if p.fun == nil {
			p.mu.Unlock()
			var zero T
			return zero, ErrNoObject
		}

		key := p.keyFunc()
		if obj, ok := p.held[key]; ok {
			p.mu.Unlock()
			return obj, nil
		}

		if ch, ok := p.building[key]; ok {
			p.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			}
		}

		ch := make(chan struct{})
		p.building[key] = ch

		pool := p.pool
		fun := p.fun
		id := p.nextID
		p.nextID++
		p.mu.Unlock()

		var obj T
		var err error
		if pool == nil {
			obj, err = fun(id)
		} else {
			var raw any
			raw, err = pool.AcquireAs(ctx, key)
			if err == nil {
				obj = raw.(T)
			}
		}

		p.mu.Lock()
		delete(p.building, key)
		if err == nil {
			p.held[key] = obj
		}
		close(ch)
		p.mu.Unlock()

		if err != nil {
			var zero T
			return zero, err
		}
		return obj, nil
	}
}

// Return releases obj for the caller's current scope key: if the proxy is
// pool-backed, obj is returned to the pool; either way, the next Get for
// this scope key resolves an object anew. For a pool-backed proxy that may
// be the same resource again, recycled by the pool.
func (p *Proxy[T]) Return(obj T) {
	p.mu.Lock()
	pool := p.pool
	var key string
	if p.keyFunc != nil {
		key = p.keyFunc()
	}
	delete(p.held, key)
	p.mu.Unlock()

	if pool != nil {
		pool.Release(obj)
	}
}

// Has reports whether the caller's current scope already has a resolved
// object, without resolving one.
func (p *Proxy[T]) Has() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasObj {
		return true
	}
	if p.keyFunc == nil {
		return false
	}
	_, ok := p.held[p.keyFunc()]
	return ok
}

// Do resolves the object for the caller's current scope, runs f against
// it, and Returns it (if pool-backed) regardless of f's outcome. A
// static, Obj-backed proxy is never Returned, since it was never
// borrowed.
func (p *Proxy[T]) Do(ctx context.Context, f func(T) error) error {
	obj, err := p.Get(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	pooled := p.pool != nil
	p.mu.Unlock()

	if pooled {
		defer p.Return(obj)
	}

	return f(obj)
}
