package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Color codes
const (
	reset      = "\033[0m"
	dim        = "\033[2m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	blue       = "\033[34m"
	magenta    = "\033[35m"
	cyan       = "\033[36m"
	white      = "\033[37m"
	boldRed    = "\033[1;31m"
	boldGreen  = "\033[1;32m"
	boldYellow = "\033[1;33m"
)

// Emojis for different log types
const (
	infoEmoji    = "ℹ️ "
	successEmoji = "✅ "
	errorEmoji   = "❌ "
	warnEmoji    = "⚠️ "
	stepEmoji    = "👉 "
	debugEmoji   = "🔍 "
	prEmoji      = "🔄 "
	gitEmoji     = "📦 "
	branchEmoji  = "🌿 "
	diffEmoji    = "📝 "
)

// Logger writes coloured, emoji-tagged lines. It is safe for concurrent use;
// analysis workers share one instance.
type Logger struct {
	debug bool
	color bool
	out   io.Writer
	mu    *sync.Mutex
}

// New creates a logger writing to stdout
func New(debug bool) *Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a logger writing to w. Colour is enabled only when w
// is a terminal.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Logger{
		debug: debug,
		color: color,
		out:   w,
		mu:    &sync.Mutex{},
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewWithWriter(io.Discard, false)
}

// formatMessage adds padding and wraps long lines
func formatMessage(msg string) string {
	width := 80
	lines := strings.Split(msg, "\n")
	var formatted []string

	for _, line := range lines {
		if len(line) <= width {
			formatted = append(formatted, line)
			continue
		}

		words := strings.Fields(line)
		current := ""
		for _, word := range words {
			if current != "" && len(current)+len(word)+1 > width {
				formatted = append(formatted, current)
				current = word
				continue
			}
			if current == "" {
				current = word
			} else {
				current += " " + word
			}
		}
		if current != "" {
			formatted = append(formatted, current)
		}
	}

	return strings.Join(formatted, "\n")
}

func (l *Logger) print(color, emoji, format string, args ...interface{}) {
	msg := formatMessage(fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.color {
		fmt.Fprintf(l.out, "%s%s%s%s\n", color, emoji, msg, reset)
		return
	}
	fmt.Fprintf(l.out, "%s%s\n", emoji, msg)
}

// Info prints an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.print(blue, infoEmoji, format, args...)
}

// Success prints a success message
func (l *Logger) Success(format string, args ...interface{}) {
	l.print(boldGreen, successEmoji, format, args...)
}

// Error prints an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print(boldRed, errorEmoji, format, args...)
}

// Warning prints a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.print(boldYellow, warnEmoji, format, args...)
}

// Step prints a step message
func (l *Logger) Step(format string, args ...interface{}) {
	l.print(cyan, stepEmoji, format, args...)
}

// Debug prints a debug message if debug is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.print(dim, debugEmoji, format, args...)
}

// PR prints a PR-related message
func (l *Logger) PR(format string, args ...interface{}) {
	l.print(magenta, prEmoji, format, args...)
}

// Git prints a commit-related message
func (l *Logger) Git(format string, args ...interface{}) {
	l.print(white, gitEmoji, format, args...)
}

// Branch prints a branch-related message
func (l *Logger) Branch(format string, args ...interface{}) {
	l.print(green, branchEmoji, format, args...)
}

// Diff prints a diff-related message
func (l *Logger) Diff(format string, args ...interface{}) {
	l.print(yellow, diffEmoji, format, args...)
}

// IsDebug returns whether debug logging is enabled
func (l *Logger) IsDebug() bool {
	return l.debug
}
