// Package audit is the append-only event trail correlating every protocol
// step to an attempt id. Writes are fire-and-forget: logging never blocks
// or fails the operation it describes, and the core components never read
// events back.
package audit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Levels mirror the categories the debug trail distinguishes.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is one append-only audit record.
type Event struct {
	Timestamp      time.Time      `json:"timestamp"`
	Level          string         `json:"level"`
	Category       string         `json:"category"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	InstallationID string         `json:"installation_id,omitempty"`
	LocationID     string         `json:"location_id,omitempty"`
	AttemptID      string         `json:"attempt_id,omitempty"`
}

// Sink persists events. Append errors are logged and swallowed; the
// primary operation never sees them.
type Sink interface {
	Append(event Event) error
}

const bufferSize = 256

// Logger fans events out to a sink on a background goroutine. Log never
// blocks; if the buffer is full the event is dropped with a warning.
type Logger struct {
	sink    Sink
	log     zerolog.Logger
	events  chan Event
	done    chan struct{}
	once    sync.Once
	nowTime func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.nowTime = nowFunc
	}
}

// NewLogger starts the writer goroutine. Close must be called on shutdown
// to flush buffered events.
func NewLogger(sink Sink, log zerolog.Logger, options ...LoggerOption) *Logger {
	l := &Logger{
		sink:    sink,
		log:     log.With().Str("component", "audit").Logger(),
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}

	go l.run()
	return l
}

// Log queues an event for persistence. It fills in the timestamp if unset
// and returns immediately.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.nowTime()
	}

	select {
	case l.events <- event:
	default:
		l.log.Warn().Str("category", event.Category).Msg("audit buffer full, dropping event")
	}
}

// Close flushes buffered events and stops the writer goroutine.
func (l *Logger) Close() {
	l.once.Do(func() {
		close(l.events)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)
	for event := range l.events {
		if err := l.sink.Append(event); err != nil {
			l.log.Error().Err(err).Str("category", event.Category).Msg("failed to append audit event")
		}
		l.mirror(event)
	}
}

// mirror echoes the event to the structured log so operators see the trail
// without querying the store.
func (l *Logger) mirror(event Event) {
	entry := l.log.Info()
	if event.Level == LevelError {
		entry = l.log.Error()
	} else if event.Level == LevelWarning {
		entry = l.log.Warn()
	}
	entry.
		Str("category", event.Category).
		Str("installation_id", event.InstallationID).
		Str("attempt_id", event.AttemptID).
		Msg(event.Message)
}

// Redact shortens a secret to a recognisable but safe preview. Tokens are
// never written out in full anywhere in this service.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}
