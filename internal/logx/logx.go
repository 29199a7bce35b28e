// Package logx provides the leveled console logger used across the build
// pipelines. Messages carry a timestamp, a colored level tag, and optionally
// a colored context prefix (MODEL, MATERIAL, DATA, VPK). Warning and error
// counts accumulate for the end-of-run summary.
package logx

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type Level int

const (
	Info Level = iota
	Warn
	Error
	Debug
)

var levelTags = map[Level]string{
	Info:  "[INFO]",
	Warn:  "[WARN]",
	Error: "[ERROR]",
	Debug: "[DEBUG]",
}

var levelStyles = map[Level]lipgloss.Style{
	Info:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	Error: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	Debug: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
}

var contextStyles = map[string]lipgloss.Style{
	"MODEL":    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	"MATERIAL": lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	"DATA":     lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"VPK":      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	"QC":       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
}

// Logger writes leveled messages to stdout and optionally tees them,
// uncolored, to a log file.
type Logger struct {
	mu       sync.Mutex
	verbose  bool
	useColor bool
	logFile  *os.File

	warnings int
	errors   int
}

// Options configures a Logger.
type Options struct {
	Verbose bool
	NoColor bool
	LogFile string // append target; empty disables file logging
}

func New(opts Options) (*Logger, error) {
	l := &Logger{
		verbose:  opts.Verbose,
		useColor: !opts.NoColor && term.IsTerminal(int(os.Stdout.Fd())),
	}
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.logFile = f
	}
	return l, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
}

func (l *Logger) log(level Level, prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch level {
	case Warn:
		l.warnings++
	case Error:
		l.errors++
	case Debug:
		if !l.verbose {
			return
		}
	}

	timestamp := time.Now().Format("15:04:05")
	tag := levelTags[level]
	plain := timestamp + " " + tag
	if prefix != "" {
		plain += " [" + prefix + "]"
	}
	plain += " " + msg

	if l.logFile != nil {
		fmt.Fprintln(l.logFile, plain)
	}

	if l.useColor {
		line := timestamp + " " + levelStyles[level].Render(tag)
		if prefix != "" {
			tagged := "[" + prefix + "]"
			if style, ok := contextStyles[prefix]; ok {
				tagged = style.Render(tagged)
			}
			line += " " + tagged
		}
		fmt.Println(line + " " + msg)
		return
	}
	fmt.Println(plain)
}

func (l *Logger) Infof(format string, args ...any)  { l.log(Info, "", fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, "", fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, "", fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, "", fmt.Sprintf(format, args...)) }

// Counts returns the number of warnings and errors logged so far.
func (l *Logger) Counts() (warnings, errors int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnings, l.errors
}

// Summary logs the run-wide warning/error tally.
func (l *Logger) Summary() {
	w, e := l.Counts()
	l.Infof("Build finished: %d warning(s), %d error(s)", w, e)
}

// WithPrefix returns a child logger that tags every message with a context
// prefix. Counts are shared with the parent.
func (l *Logger) WithPrefix(context string) *Prefixed {
	return &Prefixed{base: l, prefix: context}
}

// Prefixed is a Logger view that prepends a context tag.
type Prefixed struct {
	base   *Logger
	prefix string
}

func (p *Prefixed) Infof(format string, args ...any) {
	p.base.log(Info, p.prefix, fmt.Sprintf(format, args...))
}

func (p *Prefixed) Warnf(format string, args ...any) {
	p.base.log(Warn, p.prefix, fmt.Sprintf(format, args...))
}

func (p *Prefixed) Errorf(format string, args ...any) {
	p.base.log(Error, p.prefix, fmt.Sprintf(format, args...))
}

func (p *Prefixed) Debugf(format string, args ...any) {
	p.base.log(Debug, p.prefix, fmt.Sprintf(format, args...))
}

// Sink is the logging interface the pipeline components accept, satisfied by
// both Logger and Prefixed.
type Sink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
