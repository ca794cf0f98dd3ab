package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler is a slog.Handler printing coloured single-line records:
//
//	2024-03-09T16:04:05 | INFO  | connected endpoint=...
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewConsoleHandler creates a ConsoleHandler writing records at or above
// level to w.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString("%-5s", level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString("%-5s", level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString("%-5s", level)
	default:
		level = color.MagentaString("%-5s", level)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)
	for _, a := range h.attrs {
		b.WriteString(color.CyanString(" %s=%v", a.Key, a.Value))
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteString(color.CyanString(" %s%s=%v", prefix, a.Key, a.Value))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	clone := *h
	clone.attrs = merged
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// Compile-time interface satisfaction check.
var _ slog.Handler = (*ConsoleHandler)(nil)
