package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New(color.FgHiCyan)
	warnColor  = color.New(color.FgHiYellow)
	errorColor = color.New(color.FgHiRed, color.Bold)
	keyColor   = color.New(color.FgHiBlack)
)

// prettyHandler writes one colored line per record:
//
//	15:04:05 INFO  message key=value ...
//
// fatih/color disables itself when the output is not a terminal.
type prettyHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func newPrettyHandler(w io.Writer, level slog.Leveler) *prettyHandler {
	return &prettyHandler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(levelColor(r.Level).Sprintf("%-5s", r.Level.String()))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := prefix
		if a.Key != "" {
			group = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(buf, group, ga)
		}
		return
	}

	value := a.Value.String()
	if strings.ContainsAny(value, " \t\n\"=") {
		value = fmt.Sprintf("%q", value)
	}
	buf.WriteByte(' ')
	buf.WriteString(keyColor.Sprint(prefix + a.Key + "="))
	buf.WriteString(value)
}

func levelColor(level slog.Level) *color.Color {
	switch {
	case level < slog.LevelInfo:
		return debugColor
	case level < slog.LevelWarn:
		return infoColor
	case level < slog.LevelError:
		return warnColor
	default:
		return errorColor
	}
}
