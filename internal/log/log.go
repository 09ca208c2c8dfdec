// Package log is the small structured-logging facade used throughout
// clrhost. It mirrors the Logger/Helper/Filter shape the loader and
// interpreter are written against: a Logger takes alternating key/value
// pairs, and a Helper adds the printf-style convenience methods call sites
// actually use.
package log

import "fmt"

// Level is a log severity.
type Level int8

// Severity levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink every backend implements.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// Helper wraps a Logger with printf-style and leveled convenience methods.
// Every component in this runtime (the image reader, the metadata resolver,
// the interpreter) logs through a *Helper rather than a bare Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, msg string) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, "msg", msg)
}

// Debugf logs at debug level.
func (h *Helper) Debugf(format string, args ...interface{}) { h.log(LevelDebug, fmt.Sprintf(format, args...)) }

// Infof logs at info level.
func (h *Helper) Infof(format string, args ...interface{}) { h.log(LevelInfo, fmt.Sprintf(format, args...)) }

// Warnf logs at warn level.
func (h *Helper) Warnf(format string, args ...interface{}) { h.log(LevelWarn, fmt.Sprintf(format, args...)) }

// Errorf logs at error level.
func (h *Helper) Errorf(format string, args ...interface{}) { h.log(LevelError, fmt.Sprintf(format, args...)) }

// Fatalf logs at fatal level. It does not exit the process; callers that
// need that decide for themselves.
func (h *Helper) Fatalf(format string, args ...interface{}) { h.log(LevelFatal, fmt.Sprintf(format, args...)) }
