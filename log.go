package respool

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the subset of zerolog.Logger the pool relies on. Hooks and the
// housekeeper log through this interface so a consumer can redirect or
// capture pool diagnostics (see respool/mock.TestLogger for a capturing
// implementation used in this module's own tests).
type Logger interface {
	Panic() *zerolog.Event
	Err(error) *zerolog.Event
	Warn() *zerolog.Event
	Fatal() *zerolog.Event
	Info() *zerolog.Event
	Debug() *zerolog.Event
}

// Log is the package-level logger used by every *Pool that does not set
// Config.LogLevel to something requiring a dedicated instance.
var Log Logger

func init() {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel).
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			e.Int("pid", os.Getpid())
		}))

	Log = &l
}
