// Package mock provides test doubles for respool: a capturing logger that
// lets tests assert on structured log output, and a resource double used
// by the core package's own tests and by callers exercising Config hooks
// without a real backend.
package mock

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tsurugi-dev/respool"
)

// TestLog is the active capturing logger, installed over respool.Log by
// ResetLog. Tests that care about log output call ResetLog in a setup step
// and then inspect TestLog.
var TestLog *TestLogger

func init() {
	ResetLog()
}

// ResetLog installs a fresh TestLogger as respool.Log, discarding any
// previously captured events.
func ResetLog() {
	TestLog = &TestLogger{}
	TestLog.Logger = zerolog.New(TestLog)
	respool.Log = TestLog
}

// TestLogger is a respool.Logger that captures every emitted event as a
// decoded JSON object instead of writing it anywhere.
type TestLogger struct {
	zerolog.Logger
	events []Event

	mu sync.RWMutex
}

// Event is one decoded structured log line.
type Event map[string]any

// Fatal is downgraded to Error so a test process calling a code path that
// would otherwise os.Exit can still complete and make assertions.
func (l *TestLogger) Fatal() *zerolog.Event {
	return l.Error()
}

func (l *TestLogger) Write(p []byte) (n int, err error) {
	n = len(p)

	var event Event
	err = json.Unmarshal(p, &event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)

	return
}

func (l *TestLogger) AddEvent(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
}

func (l *TestLogger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.events)
}

func (l *TestLogger) EventAtIndex(i int) Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.events[i]
}

func (l *TestLogger) EventByMessage(msg string) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.events {
		if m, ok := e["message"]; ok && m == msg {
			return e, true
		}
	}

	return Event{}, false
}

// EventsForPool returns every captured event carrying the given pool_id,
// in capture order. respool's Pool stamps pool_id on essentially every log
// line it emits (see pool.go, housekeeper.go), so tests running several
// pools against one shared TestLog use this to isolate the one under
// test instead of filtering by message text alone.
func (l *TestLogger) EventsForPool(poolID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.HasStr("pool_id", poolID) {
			out = append(out, e)
		}
	}
	return out
}

func (e Event) HasField(key string) bool {
	_, ok := e[key]
	return ok
}

func (e Event) HasErr(err error) bool {
	return e["error"] == err.Error()
}

func (e Event) HasStr(key, value string) bool {
	return e[key] == value
}

func (e Event) HasTime(key string, t time.Time, within time.Duration) bool {
	str, ok := e[key]
	if !ok {
		return false
	}

	switch str.(type) {
	case string:
		v, err := time.Parse(time.RFC3339, str.(string))
		if err != nil {
			return false
		}

		if t.Add(within).After(v) && t.Add(-within).Before(v) {
			return true
		}
	default:
		return false
	}

	return false
}

// HasDur reports whether e carries a zerolog Dur field at key within
// tolerance of d. zerolog encodes Dur fields as a float number of
// milliseconds by default, which is what housekeeper.go's "held_for"
// fields use (MaxUsingDelay/MaxUsingDelayKill warnings).
func (e Event) HasDur(key string, d, within time.Duration) bool {
	v, ok := e[key]
	if !ok {
		return false
	}

	ms, ok := v.(float64)
	if !ok {
		return false
	}

	got := time.Duration(ms) * time.Millisecond
	diff := got - d
	if diff < 0 {
		diff = -diff
	}
	return diff <= within
}
