package respool

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Config configures a Pool. Fun is the only required field.
type Config struct {
	// Fun constructs a new resource given its creation index. It must be
	// safe to call concurrently and is always invoked without the pool's
	// lock held.
	Fun func(id int64) (any, error)

	// MaxSize bounds the number of live resources; 0 means unbounded (no
	// capacity gate).
	MaxSize int

	// MinSize is the aspired lower bound the housekeeper tops up to. Zero
	// means no aspired minimum: resources are constructed purely on
	// demand and the housekeeper starts lazily on the first Acquire
	// instead of eagerly in New.
	MinSize int

	// Timeout bounds how long Acquire waits for a capacity permit. 0
	// means wait forever.
	Timeout time.Duration

	// MaxUse retires a resource after this many acquisitions. 0 means
	// unlimited.
	MaxUse int

	// MaxAvailDelay retires an idle resource once it has sat in avail
	// longer than this. 0 means never.
	MaxAvailDelay time.Duration

	// MaxUsingDelay logs a warning once a resource has been held longer
	// than this. 0 means never warn.
	MaxUsingDelay time.Duration

	// MaxUsingDelayKill forcibly retires a resource held longer than
	// this, regardless of whether the holder ever returns it. 0 means
	// never kill.
	MaxUsingDelayKill time.Duration

	// HealthFreq runs the Health hook every N housekeeper sweeps.
	// Defaults to 1 (every sweep).
	HealthFreq int

	// HKDelay is the housekeeper sweep period. 0 picks
	// min(positive timers)/2, clamped to [1s, 1h].
	HKDelay time.Duration

	// Opener is called after a resource is constructed, before it is
	// handed to any caller. Failures are logged, not propagated.
	Opener func(obj any)

	// Getter is called before a resource is handed to an acquirer.
	// Returning an error retires the resource and the error propagates
	// to the caller of Acquire.
	Getter func(obj any) error

	// Retter is called when a resource is returned. Returning an error
	// retires the resource instead of recycling it.
	Retter func(obj any) error

	// Closer is called before a resource is destroyed. Failures are
	// logged, not propagated.
	Closer func(obj any)

	// Health is polled by the housekeeper for available resources, every
	// HealthFreq sweeps. Returning false retires the resource.
	Health func(obj any) bool

	// Stats is merged into the Snapshot's User field, if set.
	Stats func() any

	// Tracer produces a short diagnostic annotation for an entry, cached
	// on acquisition and surfaced in Snapshot records.
	Tracer func(obj any) string

	// LogLevel, if set, is applied to the pool's logger. A nil LogLevel
	// (the zero value) leaves the current level of respool.Log alone;
	// Config.LogLevel can't be a bare zerolog.Level, since that type's
	// own zero value is DebugLevel, not "unset".
	LogLevel *zerolog.Level

	// ReloadGuardKey opts a pool into the reload guard (see the
	// RESPOOL_DISABLE_RELOAD_GUARD environment variable): of the pools
	// constructed with the same non-empty key in this process, only the
	// first starts its housekeeper. Leave unset unless embedding respool
	// inside a debug auto-reloader that re-executes the same
	// pool-construction code in one process and would otherwise leak a
	// housekeeper goroutine per reload. This must be an explicit,
	// caller-chosen string rather than something derived from Fun: every
	// closure of one func literal shares the same underlying code
	// pointer, so two unrelated pools built from the same
	// factory-producing helper would otherwise collide and only one
	// would ever get a housekeeper.
	ReloadGuardKey string
}

// ErrNoFactory is returned by Validate/New when Config.Fun is nil.
var ErrNoFactory = errors.New("respool: Config.Fun is required")

// Validate applies defaults and rejects nonsensical configuration. It is
// called by New and need not be called directly.
func (c *Config) Validate() error {
	if c.Fun == nil {
		return ErrNoFactory
	}
	if c.MaxSize < 0 {
		return errors.New("respool: MaxSize must be >= 0")
	}
	if c.MinSize < 0 {
		return errors.New("respool: MinSize must be >= 0")
	}
	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return errors.New("respool: MinSize must be <= MaxSize when MaxSize > 0")
	}
	if c.Timeout < 0 {
		return errors.New("respool: Timeout must be >= 0")
	}
	if c.MaxUse < 0 {
		return errors.New("respool: MaxUse must be >= 0")
	}
	if c.MaxAvailDelay < 0 || c.MaxUsingDelay < 0 || c.MaxUsingDelayKill < 0 {
		return errors.New("respool: delay fields must be >= 0")
	}
	if c.HealthFreq == 0 {
		c.HealthFreq = 1
	}
	if c.HealthFreq < 0 {
		return errors.New("respool: HealthFreq must be >= 1")
	}
	if c.HKDelay < 0 {
		return errors.New("respool: HKDelay must be >= 0")
	}
	if c.HKDelay == 0 {
		c.HKDelay = defaultHKDelay(c.MaxAvailDelay, c.MaxUsingDelay, c.MaxUsingDelayKill)
	}

	return nil
}

const (
	minHKDelay = 1 * time.Second
	maxHKDelay = 1 * time.Hour
)

// defaultHKDelay picks a sweep period of min(positive timers) / 2, capped
// to [1s, 1h]. An hour is used
// as the fallback when no timer is set, so the housekeeper still performs
// at least the min_size top-up sweep once in a while.
func defaultHKDelay(timers ...time.Duration) time.Duration {
	var min time.Duration
	for _, t := range timers {
		if t <= 0 {
			continue
		}
		if min == 0 || t < min {
			min = t
		}
	}

	if min == 0 {
		return maxHKDelay
	}

	d := min / 2
	if d < minHKDelay {
		return minHKDelay
	}
	if d > maxHKDelay {
		return maxHKDelay
	}
	return d
}
