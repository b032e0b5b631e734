package respool

import "time"

// Version is the stats snapshot schema version, bumped only if the shape
// of Snapshot changes in a way a consumer parsing the JSON would notice.
const Version = 1

// ConfigSnapshot is the subset of Config worth echoing back in Stats, as
// plain values (no function fields).
type ConfigSnapshot struct {
	MaxSize           int           `json:"max_size"`
	MinSize           int           `json:"min_size"`
	Timeout           time.Duration `json:"timeout"`
	MaxUse            int           `json:"max_use"`
	MaxAvailDelay     time.Duration `json:"max_avail_delay"`
	MaxUsingDelay     time.Duration `json:"max_using_delay"`
	MaxUsingDelayKill time.Duration `json:"max_using_delay_kill"`
	HealthFreq        int           `json:"health_freq"`
	HKDelay           time.Duration `json:"hk_delay"`
}

// Snapshot is a point-in-time view of a Pool's size and usage, returned
// by Pool.Stats().
type Snapshot struct {
	PoolID  string        `json:"pool_id"`
	Version int           `json:"version"`
	Started time.Time     `json:"started_at"`
	Now     time.Time     `json:"now"`
	Uptime  time.Duration `json:"uptime"`

	NTotal int `json:"n_total"`
	NAvail int `json:"n_avail"`
	NBusy  int `json:"n_busy"`

	NCreated      uint64 `json:"n_created"`
	NDestroyed    uint64 `json:"n_destroyed"`
	NAcquisitions uint64 `json:"n_acquisitions"`
	NReturns      uint64 `json:"n_returns"`
	NTimeouts     uint64 `json:"n_timeouts"`
	NHealthFail   uint64 `json:"n_health_fail"`
	NKilled       uint64 `json:"n_killed"`
	NBadReturns   uint64 `json:"n_bad_returns"`

	Config ConfigSnapshot `json:"config"`
	Avail  []record       `json:"avail"`
	Busy   []record       `json:"busy"`
	User   any            `json:"user,omitempty"`
}

// Stats takes a consistent snapshot of the pool's counters and per-entry
// metadata under lock; the User hook and formatting happen outside it.
func (p *Pool) Stats() Snapshot {
	p.mu.Lock()

	s := Snapshot{
		PoolID:        p.poolID,
		Version:       Version,
		Started:       p.startedAt,
		NTotal:        len(p.avail) + len(p.busy),
		NAvail:        len(p.avail),
		NBusy:         len(p.busy),
		NCreated:      p.nCreated,
		NDestroyed:    p.nDestroyed,
		NAcquisitions: p.nAcquisitions,
		NReturns:      p.nReturns,
		NTimeouts:     p.nTimeouts,
		NHealthFail:   p.nHealthFail,
		NKilled:       p.nKilled,
		NBadReturns:   p.nBadReturns,
		Config: ConfigSnapshot{
			MaxSize:           p.cfg.MaxSize,
			MinSize:           p.cfg.MinSize,
			Timeout:           p.cfg.Timeout,
			MaxUse:            p.cfg.MaxUse,
			MaxAvailDelay:     p.cfg.MaxAvailDelay,
			MaxUsingDelay:     p.cfg.MaxUsingDelay,
			MaxUsingDelayKill: p.cfg.MaxUsingDelayKill,
			HealthFreq:        p.cfg.HealthFreq,
			HKDelay:           p.cfg.HKDelay,
		},
		Avail: make([]record, len(p.avail)),
		Busy:  make([]record, 0, len(p.busy)),
	}

	for i, e := range p.avail {
		s.Avail[i] = e.record()
	}
	for _, e := range p.busy {
		s.Busy = append(s.Busy, e.record())
	}

	p.mu.Unlock()

	s.Now = time.Now()
	s.Uptime = s.Now.Sub(s.Started)
	s.User = p.callUserStats()

	return s
}
