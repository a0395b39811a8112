package client

import (
	"time"

	"github.com/pqasync/pqasync/events"
	"github.com/pqasync/pqasync/log"
	"github.com/pqasync/pqasync/pgtypes"
)

// Options configures a session. The zero value is usable; Open fills in
// the defaults below.
type Options struct {
	// Logger receives session, task and notice output.
	// Default: a noop logger.
	Logger log.Logger

	// Queue is the event queue the session's strand lives on.
	// Default: the process-wide default queue.
	Queue *events.Queue

	// ConnectTimeout bounds a synchronous or asynchronous connection
	// acquisition, pool stealing included.
	// Default: 5s.
	ConnectTimeout time.Duration

	// ResultFormat selects the wire format query results arrive in.
	// Default: binary.
	ResultFormat int16

	// MoneyLocale overrides money formatting. When unset the session
	// follows the server's reported lc_monetary.
	MoneyLocale *pgtypes.MoneyLocale
}

// DefaultOptions returns the defaults Open starts from.
func DefaultOptions() Options {
	return Options{
		Logger:         log.Noop(),
		Queue:          events.Default(),
		ConnectTimeout: 5 * time.Second,
		ResultFormat:   pgtypes.BinaryFormat,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	if o.Queue == nil {
		o.Queue = def.Queue
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.ResultFormat != pgtypes.TextFormat && o.ResultFormat != pgtypes.BinaryFormat {
		o.ResultFormat = def.ResultFormat
	}
	return o
}
