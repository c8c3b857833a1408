// Package logx is a thin wrapper over the standard log package, matching
// the logging idiom cmd/manager/main.go uses throughout the teacher repo:
// plain log.Printf calls with ad-hoc key=value tokens, no structured
// logging library.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger prefixes every line with a component tag, the way the teacher
// tags its own subsystem logs (e.g. "[dyad]", "[beam]").
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a Logger writing to stderr with the given component tag.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) line(level, msg string, kv ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", l.component, level, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

// Info logs an informational line with key=value pairs appended.
func (l *Logger) Info(msg string, kv ...any) { l.std.Print(l.line("INFO", msg, kv...)) }

// Warn logs a warning line.
func (l *Logger) Warn(msg string, kv ...any) { l.std.Print(l.line("WARN", msg, kv...)) }

// Error logs an error line.
func (l *Logger) Error(msg string, kv ...any) { l.std.Print(l.line("ERROR", msg, kv...)) }
