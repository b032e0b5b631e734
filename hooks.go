package respool

// This file isolates every call into user-supplied code (the factory and
// the Opener/Getter/Retter/Closer/Health/Tracer/Stats hooks) behind a
// recover so a panicking hook degrades to an ordinary failure instead of
// crashing the acquirer's goroutine or the housekeeper: the factory,
// Getter and Retter wrappers turn the panic into a returned error, and
// the Opener/Closer/Health/Tracer/Stats wrappers log it. Hooks always run
// with no pool lock held.

func (p *Pool) callFactory(id int64) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()

	return p.cfg.Fun(id)
}

func (p *Pool) callOpener(obj any) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("opener hook panicked")
		}
	}()

	p.cfg.Opener(obj)
}

func (p *Pool) callCloser(obj any) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("closer hook panicked")
		}
	}()

	p.cfg.Closer(obj)
}

func (p *Pool) callGetter(obj any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()

	return p.cfg.Getter(obj)
}

func (p *Pool) callRetter(obj any) (err error) {
	if p.cfg.Retter == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()

	return p.cfg.Retter(obj)
}

func (p *Pool) callHealth(obj any) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("health hook panicked")
			healthy = false
		}
	}()

	return p.cfg.Health(obj)
}

func (p *Pool) callTracer(obj any) (trace string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("tracer hook panicked")
			trace = ""
		}
	}()

	return p.cfg.Tracer(obj)
}

func (p *Pool) callUserStats() (stats any) {
	if p.cfg.Stats == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Err(panicError{r}).Str("pool_id", p.poolID).Msg("stats hook panicked")
			stats = nil
		}
	}()

	return p.cfg.Stats()
}
