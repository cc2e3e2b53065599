package core

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// DefaultLogger prints human readable lines through pterm and, when a structured
// writer is attached, mirrors every record through a slog text handler.
type DefaultLogger struct {
	level   LogLevel
	handler *slog.Logger
	output  io.Writer
	attrs   []any
}

func NewDefaultLogger(output io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:   level,
		handler: slog.New(slog.NewTextHandler(io.Discard, nil)),
		output:  output,
	}
}

// WithStructured attaches a slog text handler writing to w.
func (l *DefaultLogger) WithStructured(w io.Writer) *DefaultLogger {
	l.handler = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: toSlogLevel(l.level),
	})).With(l.attrs...)
	return l
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// line renders msg followed by key=value pairs for the pterm printers.
func (l *DefaultLogger) line(msg string, args []any) string {
	all := append(append([]any{}, l.attrs...), args...)
	if len(all) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(all); i += 2 {
		if i+1 < len(all) {
			fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
		} else {
			fmt.Fprintf(&b, " %v", all[i])
		}
	}
	return b.String()
}

func (l *DefaultLogger) Trace(msg string, args ...any) {
	if l.level <= LevelTrace {
		pterm.Debug.WithWriter(l.output).Println("TRACE: " + l.line(msg, args))
		l.handler.Debug(msg, args...)
	}
}

func (l *DefaultLogger) Debug(msg string, args ...any) {
	if l.level <= LevelDebug {
		pterm.Debug.WithWriter(l.output).Println(l.line(msg, args))
		l.handler.Debug(msg, args...)
	}
}

func (l *DefaultLogger) Info(msg string, args ...any) {
	if l.level <= LevelInfo {
		pterm.Info.WithWriter(l.output).Println(l.line(msg, args))
		l.handler.Info(msg, args...)
	}
}

func (l *DefaultLogger) Warn(msg string, args ...any) {
	if l.level <= LevelWarn {
		pterm.Warning.WithWriter(l.output).Println(l.line(msg, args))
		l.handler.Warn(msg, args...)
	}
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	if l.level <= LevelError {
		pterm.Error.WithWriter(l.output).Println(l.line(msg, args))
		l.handler.Error(msg, args...)
	}
}

func (l *DefaultLogger) With(args ...any) Logger {
	return &DefaultLogger{
		level:   l.level,
		handler: l.handler.With(args...),
		output:  l.output,
		attrs:   append(append([]any{}, l.attrs...), args...),
	}
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level = level
}
