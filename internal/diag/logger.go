// Package diag is a small leveled logger that writes one JSON event per line.
package diag

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Off
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Off:
		return "off"
	default:
		return "info"
	}
}

// ParseLevel maps a level name to a Level; unknown names fall back to Warn.
// The empty string and "off" disable logging.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "error":
		return Error
	case "", "off":
		return Off
	default:
		return Warn
	}
}

// Event is the JSON shape of one log line.
type Event struct {
	Level string            `json:"level"`
	TS    string            `json:"ts"`
	Comp  string            `json:"comp"`
	Stage string            `json:"stage"` // start|finish|warn|error
	DurMS int64             `json:"dur_ms,omitempty"`
	Count int64             `json:"count,omitempty"`
	File  string            `json:"file,omitempty"`
	Msg   string            `json:"msg"`
	KV    map[string]string `json:"kv,omitempty"`
}

// Logger writes events at or above its level to w. A nil *Logger discards
// everything, so components can take one unconditionally.
type Logger struct {
	level Level
	w     io.Writer
	now   func() time.Time
	mu    sync.Mutex
}

func NewLogger(w io.Writer, level string) *Logger {
	return &Logger{level: ParseLevel(level), w: w, now: time.Now}
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || l.w == nil || lv < l.level || l.level == Off {
		return
	}
	ev.Level = lv.String()
	ev.TS = l.now().UTC().Format(time.RFC3339Nano)
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(b, '\n'))
}

// Start records a start event and returns a timer for the matching finish.
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// Warn records a recoverable problem tied to file.
func (l *Logger) Warn(comp, file, msg string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", File: file, Msg: msg})
}

// Error records a fatal problem.
func (l *Logger) Error(comp, msg string, kv map[string]string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Msg: msg, KV: kv})
}

// DebugFile records per-file progress; only emitted at debug level.
func (l *Logger) DebugFile(comp, file, msg string, count int64) {
	l.log(Debug, Event{Comp: comp, Stage: "finish", File: file, Count: count, Msg: msg})
}

// Timer measures start→finish.
type Timer struct {
	l    *Logger
	comp string
	t0   time.Time
}

// Finish records the finish event with an optional count.
func (t *Timer) Finish(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Msg: msg, KV: kv})
}
