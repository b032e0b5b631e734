package respool

import (
	"os"
	"sync"
)

// reloadGuardEnv is a documented environment knob: it suppresses a
// first-instantiation path so a debug auto-reloader that re-executes a
// program's init/main in the same process does not leak the first pool's
// housekeeper goroutine. It has no effect on a pool whose Config leaves
// ReloadGuardKey unset, which is the common case.
const reloadGuardEnv = "RESPOOL_DISABLE_RELOAD_GUARD"

var (
	reloadGuardMu   sync.Mutex
	reloadGuardSeen = map[string]bool{}
)

func reloadGuardDisabled() bool {
	switch os.Getenv(reloadGuardEnv) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// reloadGuardFirstInstance reports whether this is the first *Pool built
// under key in the current process. An empty key (Config.ReloadGuardKey
// left unset) always reports true: the guard only applies when a caller
// explicitly opts a pool into it, since a factory function's identity
// cannot serve as an implicit key here — reflect.ValueOf(fun).Pointer()
// returns the same code address for every closure of one func literal,
// so two unrelated pools built from a common factory-producing helper
// (e.g. a test's mock.NewFactory) would otherwise collide under one key
// and only the first would ever start a housekeeper.
func reloadGuardFirstInstance(key string) bool {
	if key == "" || reloadGuardDisabled() {
		return true
	}

	reloadGuardMu.Lock()
	defer reloadGuardMu.Unlock()

	if reloadGuardSeen[key] {
		return false
	}
	reloadGuardSeen[key] = true
	return true
}
