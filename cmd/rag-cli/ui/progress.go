package ui

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
	active  bool
}

// NewSpinner creates a new spinner with the given message. Rendering is
// suppressed when stdout is not a terminal.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s, active: IsTerminal()}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s.active {
		s.spinner.Start()
	}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.active {
		s.spinner.Stop()
	}
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Suffix = " " + message
}

// PollBar shows elapsed progress while waiting on a document to finish
// indexing. The total is a soft estimate; the bar saturates rather than
// overflowing.
type PollBar struct {
	bar *progressbar.ProgressBar
}

// NewPollBar creates an indeterminate-friendly progress bar.
func NewPollBar(description string) *PollBar {
	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &PollBar{bar: bar}
}

// Tick advances the bar one step.
func (p *PollBar) Tick() {
	_ = p.bar.Add(1)
}

// Finish completes the bar and clears the line.
func (p *PollBar) Finish() {
	_ = p.bar.Finish()
}
