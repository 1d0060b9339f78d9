package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Colors for terminal output. They are empty when stdout is not a terminal
// or NO_COLOR is set.
var (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

// out is where every helper writes.
var out io.Writer = os.Stdout

func init() {
	if os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		DisableColor()
	}
}

// DisableColor turns off ANSI escapes for the rest of the process.
func DisableColor() {
	Reset, Bold, Dim, Red, Green, Yellow, Blue, Cyan = "", "", "", "", "", "", "", ""
}

// SetOutput redirects the helpers, mainly for tests.
func SetOutput(w io.Writer) { out = w }

// Spinner provides a terminal spinner for long-running operations.
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	done    chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a new spinner.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation. Without a colour terminal it prints
// the message once instead.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if Reset == "" {
		fmt.Fprintf(out, "%s...\n", s.message)
		return
	}

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(out, "\r%s%s %s%s", Cyan, spinnerFrames[i%len(spinnerFrames)], msg, Reset)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	if Reset != "" {
		fmt.Fprintf(out, "\r%s\r", strings.Repeat(" ", 80))
	}
}

// Success prints a green success message.
func Success(msg string) {
	fmt.Fprintf(out, "%s%s✓%s %s\n", Bold, Green, Reset, msg)
}

// Error prints a red error message.
func Error(msg string) {
	fmt.Fprintf(out, "%s%s✗%s %s\n", Bold, Red, Reset, msg)
}

// Info prints a blue info message.
func Info(msg string) {
	fmt.Fprintf(out, "%s%si%s %s\n", Bold, Blue, Reset, msg)
}

// Warning prints a yellow warning message.
func Warning(msg string) {
	fmt.Fprintf(out, "%s%s!%s %s\n", Bold, Yellow, Reset, msg)
}

// Header prints a bold header.
func Header(msg string) {
	fmt.Fprintf(out, "\n%s%s%s\n", Bold, msg, Reset)
}

// Detail prints an indented detail line.
func Detail(label, value string) {
	fmt.Fprintf(out, "  %s%s:%s %s\n", Dim, label, Reset, value)
}

// Divider prints a horizontal line.
func Divider() {
	fmt.Fprintf(out, "%s%s%s\n", Dim, strings.Repeat("─", 60), Reset)
}

// Table prints rows under a header with padded columns.
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintf(out, "  %s%s%s\n", Dim, line(header), Reset)
	for _, row := range rows {
		fmt.Fprintf(out, "  %s\n", line(row))
	}
}

// Banner prints the welcome box with the given version.
func Banner(version string) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s╭─────────────────────────────────╮%s\n", Dim, Reset)
	fmt.Fprintf(out, "  %s│%s  Supalink %s%-22s%s%s│%s\n", Dim, Reset, Bold, "v"+version, Reset, Dim, Reset)
	fmt.Fprintf(out, "  %s│%s  Supabase account connection    %s│%s\n", Dim, Reset, Dim, Reset)
	fmt.Fprintf(out, "  %s╰─────────────────────────────────╯%s\n", Dim, Reset)
	fmt.Fprintln(out)
}
