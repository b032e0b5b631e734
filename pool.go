// Package respool implements a generic, thread-safe resource pool: a
// bounded, self-healing container of opaque resources with capacity
// admission, timed waits, usage accounting, background housekeeping, and
// observable statistics.
//
// The pool does not interpret the resources it holds. It only counts and
// times them and calls the hooks configured on Config.
package respool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool is a bounded container of opaque, reusable resources. A zero Pool
// is not usable; construct one with New.
type Pool struct {
	cfg    Config
	poolID string
	log    Logger

	mu        sync.Mutex
	cond      *sync.Cond
	avail     []*entry
	busy      map[any]*entry
	nextID    int64
	shutdown  bool
	startedAt time.Time

	constructing int // slots reserved for in-flight factory calls

	nCreated      uint64
	nDestroyed    uint64
	nAcquisitions uint64
	nReturns      uint64
	nTimeouts     uint64
	nHealthFail   uint64
	nKilled       uint64
	nBadReturns   uint64

	sem chan struct{} // capacity gate; nil when MaxSize == 0

	hkWG      sync.WaitGroup
	hkOnce    sync.Once
	hkStop    chan struct{}
	hkRunning bool
	sweeps    int
}

// New constructs a Pool from cfg. It validates and defaults cfg in place.
// If cfg.MinSize > 0 the minimum resources are constructed eagerly and the
// housekeeper is started before New returns; otherwise the housekeeper is
// started lazily on the first Acquire.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("respool: generating pool id: %w", err)
	}

	p := &Pool{
		cfg:       cfg,
		poolID:    id.String(),
		log:       Log,
		busy:      make(map[any]*entry),
		startedAt: time.Now(),
		hkStop:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	if cfg.LogLevel != nil {
		if zl, ok := Log.(*zerolog.Logger); ok {
			leveled := zl.Level(*cfg.LogLevel)
			p.log = &leveled
		}
	}

	if cfg.MaxSize > 0 {
		p.sem = make(chan struct{}, cfg.MaxSize)
		for i := 0; i < cfg.MaxSize; i++ {
			p.sem <- struct{}{}
		}
	}

	if cfg.MinSize > 0 {
		p.topUp()
		p.startHousekeeper()
	}

	return p, nil
}

// Acquire returns a resource from the pool, creating one via Config.Fun if
// none is available and capacity permits. ctx bounds the wait for a
// capacity permit together with Config.Timeout (whichever is shorter);
// Config.Timeout == 0 means "no additional bound beyond ctx".
func (p *Pool) Acquire(ctx context.Context) (any, error) {
	return p.AcquireAs(ctx, "")
}

// AcquireAs is Acquire with an explicit holder/scope key, recorded on the
// entry and surfaced in Stats. The proxy package uses this to attribute
// resources to a scope; direct callers can pass "".
func (p *Pool) AcquireAs(ctx context.Context, holder string) (any, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	p.startHousekeeper()

	if err := p.takePermit(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.releasePermit()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	obj, e, err := p.allocate(holder)
	if err != nil {
		p.releasePermit()
		return nil, err
	}

	if p.cfg.Getter != nil {
		if err := p.callGetter(obj); err != nil {
			p.destroyAndFreeSlot(e)
			p.releasePermit()
			return nil, NewPoolError("getter", err)
		}
	}

	if p.cfg.Tracer != nil {
		trace := p.callTracer(obj)
		p.mu.Lock()
		e.trace = trace
		p.mu.Unlock()
	}

	return obj, nil
}

// allocate pops an available entry or constructs a new one, registers it
// as busy, and returns the wrapped object. Exactly one capacity permit
// must already be held by the caller.
func (p *Pool) allocate(holder string) (any, *entry, error) {
	p.mu.Lock()
	if n := len(p.avail); n > 0 {
		e := p.avail[0]
		p.avail = p.avail[1:]

		e.state = stateInUse
		e.holder = holder
		e.lastGetAt = time.Now()
		e.uses++
		p.busy[e.obj] = e
		p.nAcquisitions++
		p.mu.Unlock()

		return e.obj, e, nil
	}

	p.constructing++
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	obj, err := p.callFactory(id)

	p.mu.Lock()
	p.constructing--
	if err != nil {
		p.mu.Unlock()
		return nil, nil, NewPoolError("factory", err)
	}

	now := time.Now()
	e := &entry{
		obj:       obj,
		id:        id,
		createdAt: now,
		lastGetAt: now,
		uses:      1,
		holder:    holder,
		state:     stateInUse,
	}
	p.busy[obj] = e
	p.nCreated++
	p.nAcquisitions++
	p.mu.Unlock()

	if p.cfg.Opener != nil {
		p.callOpener(obj)
	}

	return obj, e, nil
}

// Release returns obj to the pool. Unknown objects (already returned, or
// never acquired from this pool) are counted and logged, not treated as
// fatal.
func (p *Pool) Release(obj any) {
	p.mu.Lock()
	e, ok := p.busy[obj]
	if !ok {
		p.nBadReturns++
		p.mu.Unlock()
		p.log.Warn().Err(ErrBadReturn).Str("pool_id", p.poolID).Msg("release of unknown object")
		return
	}
	delete(p.busy, obj)
	p.nReturns++
	shutdown := p.shutdown
	p.mu.Unlock()

	retterErr := p.callRetter(obj)

	retire := shutdown ||
		retterErr != nil ||
		(p.cfg.MaxUse > 0 && e.uses >= p.cfg.MaxUse)

	if !retire && p.cfg.Health != nil {
		if !p.callHealth(obj) {
			p.mu.Lock()
			p.nHealthFail++
			p.mu.Unlock()
			retire = true
		}
	}

	if retire {
		p.destroyAndFreeSlot(e)
		if retterErr != nil {
			p.log.Warn().Err(retterErr).Str("pool_id", p.poolID).Int64("id", e.id).Msg("retter hook failed, retiring resource")
		}
		p.releasePermit()
		return
	}

	p.mu.Lock()
	e.state = stateAvailable
	e.holder = ""
	e.lastRetAt = time.Now()
	p.avail = append(p.avail, e)
	p.cond.Broadcast()
	p.mu.Unlock()

	// The permit taken in AcquireAs tracks the checkout, not the
	// resource's existence: it is freed here the instant the resource
	// stops being busy, whether it is being recycled back to avail or
	// retired above.
	p.releasePermit()
}

// destroyAndFreeSlot removes e from the registry (wherever it is),
// invokes Closer outside the lock, and bumps nDestroyed. Release's
// retirement, the getter-failure path in AcquireAs, and the housekeeper's
// idle/use/health eviction go through it; the long-hold kill and Close's
// teardown use forceRetireBusyEntry and destroyAvailableEntry instead.
// It does not touch the capacity permit: callers release it themselves
// when (and only when) e was checked out at the time of destruction.
func (p *Pool) destroyAndFreeSlot(e *entry) {
	p.mu.Lock()
	e.state = stateRetiring
	delete(p.busy, e.obj)
	for i, a := range p.avail {
		if a == e {
			p.avail = append(p.avail[:i], p.avail[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if p.cfg.Closer != nil {
		p.callCloser(e.obj)
	}

	p.mu.Lock()
	p.nDestroyed++
	p.cond.Broadcast()
	p.mu.Unlock()
}

// takePermit blocks until a capacity permit is available, ctx is
// canceled, or Config.Timeout elapses, whichever comes first. It is a
// no-op for an unbounded pool.
func (p *Pool) takePermit(ctx context.Context) error {
	if p.sem == nil {
		return nil
	}

	waitCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	select {
	case <-p.sem:
		return nil
	default:
	}

	select {
	case <-p.sem:
		return nil
	case <-waitCtx.Done():
		p.mu.Lock()
		p.nTimeouts++
		p.mu.Unlock()

		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Timeout: p.cfg.Timeout}
		}
		return waitCtx.Err()
	}
}

func (p *Pool) releasePermit() {
	if p.sem != nil {
		p.sem <- struct{}{}
	}
}

// topUp constructs resources until n_total reaches MinSize or the pool is
// shutting down. Used at startup and by the housekeeper. Top-ups build
// available resources directly, outside the checkout path, and so never
// take or release a capacity permit: MinSize <= MaxSize is enforced by
// Config.Validate, and an idle resource holds no permit under this
// pool's accounting (a permit tracks a checkout, not a live resource).
func (p *Pool) topUp() {
	for {
		p.mu.Lock()
		total := len(p.avail) + len(p.busy) + p.constructing
		if p.shutdown || total >= p.cfg.MinSize {
			p.mu.Unlock()
			return
		}
		p.constructing++
		id := p.nextID
		p.nextID++
		p.mu.Unlock()

		obj, err := p.callFactory(id)

		p.mu.Lock()
		p.constructing--
		if err != nil {
			p.nHealthFail++
			p.mu.Unlock()
			p.log.Err(err).Str("pool_id", p.poolID).Msg("housekeeper top-up factory call failed")
			return
		}

		now := time.Now()
		e := &entry{obj: obj, id: id, createdAt: now, lastRetAt: now}
		p.avail = append(p.avail, e)
		p.nCreated++
		p.cond.Broadcast()
		p.mu.Unlock()

		if p.cfg.Opener != nil {
			p.callOpener(obj)
		}
	}
}

// Close performs a graceful shutdown: new Acquires fail with
// ErrPoolClosed, the housekeeper stops, and every currently available
// resource is destroyed. In-use resources are destroyed as they are
// returned. If deadline elapses with holders still outstanding, Close
// forcibly destroys the remaining entries and logs how many. A deadline
// of 0 waits forever.
func (p *Pool) Close(deadline time.Duration) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	avail := p.avail
	p.avail = nil
	p.mu.Unlock()

	p.stopHousekeeper()

	for _, e := range avail {
		p.destroyAvailableEntry(e)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			p.mu.Lock()
			n := len(p.busy)
			p.mu.Unlock()
			if n == 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	if deadline <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(deadline):
		p.mu.Lock()
		remaining := make([]*entry, 0, len(p.busy))
		for _, e := range p.busy {
			remaining = append(remaining, e)
		}
		p.mu.Unlock()

		for _, e := range remaining {
			p.forceRetireBusyEntry(e)
		}

		p.log.Warn().
			Str("pool_id", p.poolID).
			Int("n_forced", len(remaining)).
			Msg("shutdown deadline reached, forcibly destroyed outstanding resources")
	}
}

// destroyAvailableEntry is destroyAndFreeSlot specialized for entries
// already removed from avail by Close, to avoid re-scanning the slice.
// Like destroyAndFreeSlot it does not touch the capacity permit: an
// available entry was never checked out, so it never held one.
func (p *Pool) destroyAvailableEntry(e *entry) {
	if p.cfg.Closer != nil {
		p.callCloser(e.obj)
	}

	p.mu.Lock()
	e.state = stateRetiring
	p.nDestroyed++
	p.mu.Unlock()
}
