package respool

import (
	"time"
)

// startHousekeeper starts the background sweep goroutine the first time
// it is called for this pool, unless the process's reload guard says a
// pool with the same Config.ReloadGuardKey has already started one.
func (p *Pool) startHousekeeper() {
	p.hkOnce.Do(func() {
		p.mu.Lock()
		shutdown := p.shutdown
		p.mu.Unlock()
		if shutdown {
			return
		}

		if !reloadGuardFirstInstance(p.cfg.ReloadGuardKey) {
			p.log.Debug().Str("pool_id", p.poolID).Msg("reload guard suppressed housekeeper start")
			return
		}

		p.mu.Lock()
		p.hkRunning = true
		p.mu.Unlock()

		p.hkWG.Add(1)
		go p.housekeeperLoop()
	})
}

func (p *Pool) stopHousekeeper() {
	p.mu.Lock()
	running := p.hkRunning
	p.mu.Unlock()
	if !running {
		return
	}

	close(p.hkStop)
	p.hkWG.Wait()
}

func (p *Pool) housekeeperLoop() {
	defer p.hkWG.Done()

	ticker := time.NewTicker(p.cfg.HKDelay)
	defer ticker.Stop()

	p.log.Info().Str("pool_id", p.poolID).Dur("period", p.cfg.HKDelay).Msg("housekeeper running")

	for {
		select {
		case <-p.hkStop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep runs one housekeeping pass: idle eviction, use-count eviction,
// long-hold warning and kill, health probing (every HealthFreq sweeps),
// and top-up to MinSize. It scans the registry under lock to build
// worklists, then acts on each worklist entry outside the lock so a slow
// or failing hook cannot block acquirers. A panicking hook is recovered
// per-entry so one bad resource does not stop the rest of the sweep.
func (p *Pool) sweep() {
	p.mu.Lock()
	p.sweeps++
	now := time.Now()
	runHealth := p.cfg.Health != nil && p.sweeps%p.cfg.HealthFreq == 0

	var idleEvict, useEvict, healthCandidates, longHoldKill []*entry
	var longHoldWarn []*entry

	for _, e := range p.avail {
		switch {
		case p.cfg.MaxAvailDelay > 0 && now.Sub(e.lastRetAt) > p.cfg.MaxAvailDelay:
			idleEvict = append(idleEvict, e)
		case p.cfg.MaxUse > 0 && e.uses >= p.cfg.MaxUse:
			useEvict = append(useEvict, e)
		case runHealth:
			healthCandidates = append(healthCandidates, e)
		}
	}

	for _, e := range p.busy {
		if p.cfg.MaxUsingDelay > 0 && now.Sub(e.lastGetAt) > p.cfg.MaxUsingDelay {
			longHoldWarn = append(longHoldWarn, e)
		}
		if p.cfg.MaxUsingDelayKill > 0 && now.Sub(e.lastGetAt) > p.cfg.MaxUsingDelayKill {
			longHoldKill = append(longHoldKill, e)
		}
	}
	p.mu.Unlock()

	for _, e := range idleEvict {
		p.sweepStep(func() { p.destroyAndFreeSlot(e) })
	}
	for _, e := range useEvict {
		p.sweepStep(func() { p.destroyAndFreeSlot(e) })
	}
	for _, e := range longHoldWarn {
		p.log.Warn().
			Str("pool_id", p.poolID).
			Int64("id", e.id).
			Str("holder", e.holder).
			Dur("held_for", now.Sub(e.lastGetAt)).
			Msg("resource held longer than MaxUsingDelay")
	}
	for _, e := range longHoldKill {
		p.sweepStep(func() { p.killBusyEntry(e, now) })
	}
	for _, e := range healthCandidates {
		p.sweepStep(func() {
			if !p.callHealth(e.obj) {
				p.mu.Lock()
				p.nHealthFail++
				p.mu.Unlock()
				p.destroyAndFreeSlot(e)
			}
		})
	}

	p.sweepStep(func() { p.topUp() })
}

// sweepStep runs fn with a per-entry recover so a panic in one hook call
// does not abort the rest of the sweep.
func (p *Pool) sweepStep(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("housekeeper sweep step panicked, continuing")
		}
	}()

	fn()
}

// killBusyEntry forcibly retires a resource held past MaxUsingDelayKill.
// The entry is removed from busy immediately; the eventual Release call
// from its holder will find it gone and be counted as a bad return.
func (p *Pool) killBusyEntry(e *entry, now time.Time) {
	if !p.forceRetireBusyEntry(e) {
		return
	}

	p.log.Warn().
		Str("pool_id", p.poolID).
		Int64("id", e.id).
		Str("holder", e.holder).
		Dur("held_for", now.Sub(e.lastGetAt)).
		Msg("killed resource held longer than MaxUsingDelayKill")
}

// forceRetireBusyEntry is the mechanics shared by the long-hold kill
// policy and Close's shutdown-deadline path: remove from busy, run
// Closer, count as killed+destroyed, and free the capacity permit. It
// reports false and does nothing if e is no longer busy (its holder
// released it after the caller's scan), so that checkout's permit is not
// freed a second time.
func (p *Pool) forceRetireBusyEntry(e *entry) bool {
	p.mu.Lock()
	if p.busy[e.obj] != e {
		p.mu.Unlock()
		return false
	}
	delete(p.busy, e.obj)
	e.state = stateRetiring
	p.mu.Unlock()

	if p.cfg.Closer != nil {
		p.callCloser(e.obj)
	}

	p.mu.Lock()
	p.nKilled++
	p.nDestroyed++
	p.cond.Broadcast()
	p.mu.Unlock()

	p.releasePermit()
	return true
}
