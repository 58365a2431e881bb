package uloop

import (
	"fmt"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
)

// LogLevel is the loop's own severity scale, kept small and independent of
// logiface.Level so callers implementing Logger never need to import
// logiface themselves.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger receives the loop's own lifecycle events: init and shutdown at
// info, poll errors at error, and fd_add/fd_delete at debug. Signal
// delivery and child reaping are not logged. Callback bodies are never
// logged — that is the caller's concern. kv is an alternating key/value
// slice.
type Logger interface {
	Log(level LogLevel, msg string, kv ...any)
}

// NewNoopLogger returns a Logger that discards everything; the default when
// WithLogger is not supplied.
func NewNoopLogger() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Log(LogLevel, string, ...any) {}

// Event is the logiface.Event implementation backing NewWriterLogger. It is
// intentionally minimal: a level, a message, and an ordered field list.
type Event struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	msg    string
	fields []eventField
}

type eventField struct {
	key string
	val any
}

func newEvent(level logiface.Level) *Event {
	return &Event{level: level}
}

// Level implements logiface.Event.
func (e *Event) Level() logiface.Level { return e.level }

// AddField implements logiface.Event.
func (e *Event) AddField(key string, val any) {
	e.fields = append(e.fields, eventField{key, val})
}

// AddMessage implements logiface.Event (optional method).
func (e *Event) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// AddError implements logiface.Event (optional method).
func (e *Event) AddError(err error) bool {
	e.fields = append(e.fields, eventField{"error", err.Error()})
	return true
}

// AddString implements logiface.Event (optional method).
func (e *Event) AddString(key string, val string) bool {
	e.fields = append(e.fields, eventField{key, val})
	return true
}

// AddInt implements logiface.Event (optional method).
func (e *Event) AddInt(key string, val int) bool {
	e.fields = append(e.fields, eventField{key, val})
	return true
}

// lineWriter renders an *Event as one line of key=value text, guarded by a
// mutex since logiface writers may be called from any logger-owning
// goroutine (the loop itself is single-threaded, but a shared logger may
// back more than one loop).
type lineWriter struct {
	mu  sync.Mutex
	out *os.File
}

// Write implements logiface.Writer[*Event].
func (w *lineWriter) Write(e *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.out, "level=%s msg=%q", levelName(e.level), e.msg); err != nil {
		return err
	}
	for _, f := range e.fields {
		if _, err := fmt.Fprintf(w.out, " %s=%v", f.key, f.val); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

func levelName(l logiface.Level) string {
	switch l {
	case logiface.LevelEmergency:
		return "emerg"
	case logiface.LevelAlert:
		return "alert"
	case logiface.LevelCritical:
		return "crit"
	case logiface.LevelError:
		return "error"
	case logiface.LevelWarning:
		return "warn"
	case logiface.LevelNotice:
		return "notice"
	case logiface.LevelInformational:
		return "info"
	case logiface.LevelDebug:
		return "debug"
	case logiface.LevelTrace:
		return "trace"
	default:
		return "disabled"
	}
}

// logifaceLogger adapts a *logiface.Logger[*Event] to this package's Logger.
type logifaceLogger struct {
	l *logiface.Logger[*Event]
}

// NewWriterLogger returns a Logger that writes structured, single-line
// output to out at or above minLevel, built on github.com/joeycumines/logiface.
func NewWriterLogger(out *os.File, minLevel LogLevel) Logger {
	return &logifaceLogger{
		l: logiface.New[*Event](
			logiface.WithEventFactory[*Event](logiface.NewEventFactoryFunc[*Event](newEvent)),
			logiface.WithWriter[*Event](&lineWriter{out: out}),
			logiface.WithLevel[*Event](toLogifaceLevel(minLevel)),
		),
	}
}

func (a *logifaceLogger) Log(level LogLevel, msg string, kv ...any) {
	b := a.l.Build(toLogifaceLevel(level))
	if b == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case int:
			b = b.Int(key, v)
		case error:
			b = b.Str(key, v.Error())
		default:
			b = b.Str(key, fmt.Sprint(v))
		}
	}
	b.Log(msg)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LogLevelDebug:
		return logiface.LevelDebug
	case LogLevelInfo:
		return logiface.LevelInformational
	case LogLevelWarn:
		return logiface.LevelWarning
	case LogLevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
