package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Interactive reports whether w is a terminal. Spinners and progress bars
// only redraw in place on terminals; elsewhere they print plain lines.
func Interactive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Spinner shows that a long call (an AI request, a context extraction) is
// still running
type Spinner struct {
	w           io.Writer
	message     string
	interval    time.Duration
	noColor     bool
	interactive bool

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// SpinnerOptions configures a Spinner
type SpinnerOptions struct {
	Message  string
	NoColor  bool
	Interval time.Duration // default 100ms
}

// NewSpinner creates a spinner writing to w
func NewSpinner(w io.Writer, opts SpinnerOptions) *Spinner {
	interval := opts.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	return &Spinner{
		w:           w,
		message:     opts.Message,
		interval:    interval,
		noColor:     opts.NoColor,
		interactive: Interactive(w),
	}
}

// Start begins animating. It is a no-op when w is not a terminal.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.interactive || s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.animate(s.stop, s.stopped)
}

// Stop ends the animation and clears the line. Calling it twice is safe.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
	fmt.Fprint(s.w, "\r\033[K")
}

// Success stops the spinner and prints a check mark line
func (s *Spinner) Success(message string) {
	s.Stop()
	s.finish(color.New(color.FgGreen, color.Bold), "✓", message)
}

// Error stops the spinner and prints a failure line
func (s *Spinner) Error(message string) {
	s.Stop()
	s.finish(color.New(color.FgRed, color.Bold), "✗", message)
}

func (s *Spinner) finish(c *color.Color, mark, message string) {
	if s.noColor {
		c.DisableColor()
	}
	c.Fprintf(s.w, "%s %s\n", mark, message)
}

func (s *Spinner) animate(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cyan := color.New(color.FgCyan)
	if s.noColor {
		cyan.DisableColor()
	}
	for i := 0; ; i = (i + 1) % len(spinnerFrames) {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cyan.Fprintf(s.w, "\r%s %s", spinnerFrames[i], s.message)
		}
	}
}

// ProgressBar tracks a known number of steps, such as upgrading every
// installed module
type ProgressBar struct {
	w           io.Writer
	total       int
	current     int
	width       int
	message     string
	noColor     bool
	interactive bool
}

// ProgressBarOptions configures a ProgressBar
type ProgressBarOptions struct {
	Total   int
	Width   int // default 40
	Message string
	NoColor bool
}

// NewProgressBar creates a progress bar writing to w
func NewProgressBar(w io.Writer, opts ProgressBarOptions) *ProgressBar {
	width := opts.Width
	if width == 0 {
		width = 40
	}
	return &ProgressBar{
		w:           w,
		total:       opts.Total,
		width:       width,
		message:     opts.Message,
		noColor:     opts.NoColor,
		interactive: Interactive(w),
	}
}

// Add advances the bar by n steps
func (p *ProgressBar) Add(n int) {
	p.Set(p.current + n)
}

// Set moves the bar to step n, clamped to the total
func (p *ProgressBar) Set(n int) {
	p.current = max(0, min(n, p.total))
	p.render()
}

// FinishWithMessage fills the bar and prints a check mark line
func (p *ProgressBar) FinishWithMessage(message string) {
	if p.current != p.total {
		p.Set(p.total)
	}
	if p.interactive {
		fmt.Fprintln(p.w)
	}
	green := color.New(color.FgGreen, color.Bold)
	if p.noColor {
		green.DisableColor()
	}
	green.Fprintf(p.w, "✓ %s\n", message)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		return
	}
	if !p.interactive {
		fmt.Fprintf(p.w, "%s (%d/%d)\n", p.message, p.current, p.total)
		return
	}

	filled := p.width * p.current / p.total
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filled))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")
	fmt.Fprintf(p.w, "\r%s %3d%% %s", bar.String(), 100*p.current/p.total, p.message)
}

// WithSpinner runs fn while a spinner shows message
func WithSpinner(w io.Writer, message string, noColor bool, fn func() error) error {
	spinner := NewSpinner(w, SpinnerOptions{Message: message, NoColor: noColor})
	spinner.Start()

	if err := fn(); err != nil {
		spinner.Error(message + " failed")
		return err
	}
	spinner.Success(message)
	return nil
}

// WithProgress runs fn with a bar of total steps. fn advances the bar.
func WithProgress(w io.Writer, message string, total int, noColor bool, fn func(*ProgressBar) error) error {
	bar := NewProgressBar(w, ProgressBarOptions{Total: total, Message: message, NoColor: noColor})

	if err := fn(bar); err != nil {
		if bar.interactive {
			fmt.Fprintln(w)
		}
		return err
	}
	bar.FinishWithMessage(message)
	return nil
}
