// Package prettylog provides a compact colorized slog handler for
// console output from the demo binaries.
package prettylog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const timeFormat = "15:04:05.000"

const (
	reset = "\033[0m"

	cyan     = 36
	yellow   = 33
	darkGray = 90
	lightRed = 91
	white    = 97
)

func colorize(colorCode int, v string) string {
	return fmt.Sprintf("\033[%sm%s%s", strconv.Itoa(colorCode), v, reset)
}

type handler struct {
	level slog.Level
	attrs []slog.Attr
	out   *os.File
}

func NewHandler(level slog.Level) slog.Handler {
	return &handler{
		level: level,
		out:   os.Stderr,
	}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	return h
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = colorize(darkGray, level)
	case slog.LevelInfo:
		level = colorize(cyan, level)
	case slog.LevelWarn:
		level = colorize(yellow, level)
	case slog.LevelError:
		level = colorize(lightRed, level)
	}

	var sb strings.Builder
	sb.WriteString(colorize(darkGray, r.Time.Format(timeFormat)))
	sb.WriteString(" ")
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(colorize(white, r.Message))

	for _, attr := range h.attrs {
		writeAttr(&sb, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		writeAttr(&sb, attr)
		return true
	})

	sb.WriteString("\n")
	_, err := h.out.WriteString(sb.String())
	return err
}

func writeAttr(sb *strings.Builder, attr slog.Attr) {
	value := attr.Value.Any()
	if err, ok := value.(error); ok {
		value = err.Error()
	}
	sb.WriteString(" ")
	sb.WriteString(colorize(darkGray, fmt.Sprintf("%s=%v", attr.Key, value)))
}
