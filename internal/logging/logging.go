// Package logging sets up the structured logger every other package in
// this module writes through: a colorized stderr stream for interactive
// use, fanned out to an in-memory ring buffer a UI can read back, mirroring
// the source's self.log field that every log! call in debugger.rs appends
// to and that the interface layer displays alongside the disassembly and
// register views.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

// Entry is one captured record, kept for the in-memory ring buffer.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// Ring is a fixed-capacity circular buffer of recent log entries,
// grounded on self.log: a small, bounded log the UI can render without
// re-reading every message ever produced.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
	next    int
	full    bool
}

// NewRing allocates a Ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{entries: make([]Entry, capacity), cap: capacity}
}

func (r *Ring) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the buffered entries in chronological order, oldest
// first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, r.cap)
	copy(out, r.entries[r.next:])
	copy(out[r.cap-r.next:], r.entries[:r.next])
	return out
}

// ringHandler is a minimal slog.Handler that records every record into a
// Ring, for fanning out alongside the stderr handler.
type ringHandler struct {
	ring  *Ring
	attrs []slog.Attr
	level slog.Leveler
}

func newRingHandler(ring *Ring, level slog.Leveler) *ringHandler {
	return &ringHandler{ring: ring, level: level}
}

func (h *ringHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *ringHandler) Handle(_ context.Context, r slog.Record) error {
	h.ring.push(Entry{Time: r.Time, Level: r.Level, Message: r.Message})
	return nil
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringHandler{ring: h.ring, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *ringHandler) WithGroup(string) slog.Handler { return h }

// levelColor picks the fatih/color style syntax_highlight.go uses per
// token kind, applied here per log level instead.
func levelColor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgRed, color.Bold)
	case level >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case level >= slog.LevelInfo:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgHiBlack)
	}
}

// colorHandler renders level, time and message with the level field
// colored by severity, followed by key=value attrs in text-handler style.
type colorHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func newColorHandler(w io.Writer, level slog.Leveler) *colorHandler {
	return &colorHandler{out: w, mu: &sync.Mutex{}, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	levelColor(r.Level).Fprintf(h.out, "%-5s", r.Level.String())
	io.WriteString(h.out, " "+r.Time.Format("15:04:05.000")+" "+r.Message)
	for _, a := range h.attrs {
		io.WriteString(h.out, " "+a.Key+"="+a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		io.WriteString(h.out, " "+a.Key+"="+a.Value.String())
		return true
	})
	io.WriteString(h.out, "\n")
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorHandler{out: h.out, mu: h.mu, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...), groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	return &colorHandler{out: h.out, mu: h.mu, level: h.level, attrs: h.attrs, groups: append(append([]string{}, h.groups...), name)}
}

// New builds a slog.Logger fanned out between a colorized stderr stream
// and ring, the Go analogue of self.log: callers reach for structured
// Info/Warn/Error calls instead of the source's log! macro, and the ring
// gives a UI the same "show recent messages" capability without
// re-parsing stderr.
func New(ring *Ring, traceLogging bool) *slog.Logger {
	level := slog.LevelInfo
	if traceLogging {
		level = slog.LevelDebug
	}
	handler := slogmulti.Fanout(
		newColorHandler(os.Stderr, level),
		newRingHandler(ring, level),
	)
	return slog.New(handler)
}
