package watcher

import (
	"log/slog"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a watched file appeared.
	OpCreate Operation = iota
	// OpModify indicates a watched file was written.
	OpModify
	// OpDelete indicates a watched file was removed.
	OpDelete
	// OpRename indicates a watched file was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a change to a watched file.
type FileEvent struct {
	// Path is the absolute path of the watched file.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Exists reports whether the file is expected to be present after the event.
func (e FileEvent) Exists() bool {
	return e.Operation == OpCreate || e.Operation == OpModify
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is used when fsnotify is unavailable.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the batch channel buffer.
	// Default: 16
	EventBufferSize int

	// ForcePolling skips fsnotify. Network mounts often need it.
	ForcePolling bool

	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
