package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// TerminalDetector defines the interface for terminal detection
// This allows for mocking in tests and dependency injection
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector is the default implementation using golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector interface
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	isTerminal := term.IsTerminal(fd)

	slog.Debug("terminal detection result",
		"fd", fd,
		"is_terminal", isTerminal)

	return isTerminal
}

// isInteractiveTerminal checks if the given file descriptor is an interactive terminal
func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}

	return c.terminalDetector.IsTerminal(fd)
}

// isInteractiveWriter reports whether w is a terminal. Anything that is not
// an *os.File (buffers, pipes wrapped by tests) is treated as non-interactive.
func (c *CLI) isInteractiveWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return c.isInteractiveTerminal(int(f.Fd()))
}

// progress prints a single updating percentage line. A zero progress is a
// no-op, used when the output is not a terminal.
type progress struct {
	w     io.Writer
	total int64
	last  int
}

func (c *CLI) newProgress(w io.Writer, total int64) *progress {
	if total <= 0 || !c.isInteractiveWriter(w) {
		return &progress{}
	}
	return &progress{w: w, total: total, last: -1}
}

// Update redraws the line when the whole percentage changes
func (p *progress) Update(done int64) {
	if p.w == nil {
		return
	}
	pct := int(done * 100 / p.total)
	if pct == p.last {
		return
	}
	p.last = pct
	fmt.Fprintf(p.w, "\rrendering %3d%%", pct)
}

// Done finishes the line
func (p *progress) Done() {
	if p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "\rrendering 100%%\n")
	p.w = nil
}
