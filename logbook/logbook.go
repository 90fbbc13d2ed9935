// Package logbook is the activity log shared by every component.
//
// Entries are human-readable lines written through the standard log
// package, optionally prefixed with an emoji and coloured by level.
package logbook

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is the kind of a log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warning"
	LevelError   Level = "error"
	LevelAction  Level = "action"
)

// Logger is what the engine components write to.
type Logger interface {
	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Action(format string, args ...any)
}

var levelEmoji = map[Level]string{
	LevelInfo:    "ℹ️  ",
	LevelSuccess: "✅ ",
	LevelWarn:    "⚠️  ",
	LevelError:   "❌ ",
	LevelAction:  "📦 ",
}

var levelStyle = map[Level]lipgloss.Style{
	LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#a0a0a0")),
	LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
	LevelWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
	LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	LevelAction:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
}

// Console writes entries to a standard library logger.
type Console struct {
	logger  *log.Logger
	noEmoji bool
	color   bool
	verbose bool
}

// ConsoleOptions controls console output.
type ConsoleOptions struct {
	NoEmoji bool // Plain text prefixes
	Color   bool // Colour entries by level
	Verbose bool // Show info entries
}

// NewConsole creates a console logger writing to w.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{
		logger:  log.New(w, "", log.LstdFlags),
		noEmoji: opts.NoEmoji,
		color:   opts.Color,
		verbose: opts.Verbose,
	}
}

// Emoji returns e unless emoji output is disabled.
func (c *Console) Emoji(e string) string {
	if c.noEmoji {
		return ""
	}
	return e
}

func (c *Console) write(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.color {
		msg = levelStyle[level].Render(msg)
	}
	c.logger.Printf("%s%s", c.Emoji(levelEmoji[level]), msg)
}

func (c *Console) Info(format string, args ...any) {
	if !c.verbose {
		return
	}
	c.write(LevelInfo, format, args...)
}

func (c *Console) Success(format string, args ...any) { c.write(LevelSuccess, format, args...) }
func (c *Console) Warn(format string, args ...any)    { c.write(LevelWarn, format, args...) }
func (c *Console) Error(format string, args ...any)   { c.write(LevelError, format, args...) }
func (c *Console) Action(format string, args ...any)  { c.write(LevelAction, format, args...) }

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Recorder keeps entries in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) add(level Level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Time: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Info(format string, args ...any)    { r.add(LevelInfo, format, args...) }
func (r *Recorder) Success(format string, args ...any) { r.add(LevelSuccess, format, args...) }
func (r *Recorder) Warn(format string, args ...any)    { r.add(LevelWarn, format, args...) }
func (r *Recorder) Error(format string, args ...any)   { r.add(LevelError, format, args...) }
func (r *Recorder) Action(format string, args ...any)  { r.add(LevelAction, format, args...) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of entries at the given level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Discard drops every entry.
var Discard Logger = discard{}

type discard struct{}

func (discard) Info(string, ...any)    {}
func (discard) Success(string, ...any) {}
func (discard) Warn(string, ...any)    {}
func (discard) Error(string, ...any)   {}
func (discard) Action(string, ...any)  {}

var (
	_ Logger = (*Console)(nil)
	_ Logger = (*Recorder)(nil)
)
