package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/cloudsave/engine"
)

const refreshInterval = 200 * time.Millisecond

// Feed collects progress from a running save. Its Observe method is an
// engine.Observer; the view polls it, so the transfer never waits on
// rendering.
type Feed struct {
	mu   sync.Mutex
	last engine.Progress
}

func NewFeed() *Feed {
	return &Feed{}
}

// Observe records p as the latest progress.
func (f *Feed) Observe(p engine.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
}

// Snapshot returns the latest progress.
func (f *Feed) Snapshot() engine.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// UIState represents the aggregated state for the TUI
type UIState struct {
	Destination    string
	Mode           engine.Mode
	Bytes          int64
	Chunks         int
	Parts          int
	PartSize       int
	ExpectedBytes  int64   // 0 when the source size is unknown
	ThroughputBPms float64 // bytes per millisecond
	Done           bool
	Err            error
}

// Options configures the progress view.
type Options struct {
	Destination   string
	PartSize      int
	ExpectedBytes int64

	// Cancel is called on the first ctrl+c; the view then waits for the
	// save to wind down.
	Cancel func()
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	feed      *Feed
	state     UIState
	started   time.Time
	cancel    func()
	cancelled bool

	spinner  spinner.Model
	progress progress.Model

	width int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

type tickMsg time.Time

func NewTUIModel(feed *Feed, opts Options) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	partSize := opts.PartSize
	if partSize <= 0 {
		partSize = engine.DefaultPartSize
	}

	return TUIModel{
		feed:    feed,
		started: time.Now(),
		cancel:  opts.Cancel,
		state: UIState{
			Destination:   opts.Destination,
			PartSize:      partSize,
			ExpectedBytes: opts.ExpectedBytes,
		},
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// State returns the state the view last rendered from.
func (m TUIModel) State() UIState {
	return m.state
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// apply folds p into the state, elapsed being the time since the save began.
func (m TUIModel) apply(p engine.Progress, elapsed time.Duration) TUIModel {
	if p.Destination != "" {
		m.state.Destination = p.Destination
	}
	if p.Mode != "" {
		m.state.Mode = p.Mode
	}
	m.state.Bytes = p.Bytes
	m.state.Chunks = p.Chunks
	m.state.Parts = p.Parts
	m.state.Done = p.Done
	m.state.Err = p.Err
	if ms := elapsed.Milliseconds(); ms > 0 {
		m.state.ThroughputBPms = float64(p.Bytes) / float64(ms)
	}
	return m
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancelled || m.cancel == nil {
				return m, tea.Quit
			}
			m.cancelled = true
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-14, 10)

	case tickMsg:
		m = m.apply(m.feed.Snapshot(), time.Time(msg).Sub(m.started))
		if m.state.Done {
			return m, tea.Quit
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// percent is the share of the expected size written, or when the size is
// unknown, how full the part being buffered is.
func (m TUIModel) percent() float64 {
	if m.state.Done && m.state.Err == nil {
		return 1
	}
	if m.state.ExpectedBytes > 0 {
		return min(float64(m.state.Bytes)/float64(m.state.ExpectedBytes), 1)
	}
	if m.state.PartSize <= 0 {
		return 0
	}
	return float64(m.state.Bytes%int64(m.state.PartSize)) / float64(m.state.PartSize)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	header := fmt.Sprintf("%s cloudsave %s", m.spinner.View(), m.titleStyle.Render(m.state.Destination))
	sb.WriteString(header + "\n")

	info := []string{
		formatBytes(m.state.Bytes),
		fmt.Sprintf("%d chunks", m.state.Chunks),
		fmt.Sprintf("%d parts", m.state.Parts),
		formatSpeed(m.state.ThroughputBPms * 1000),
	}
	if m.state.Mode != "" {
		info = append([]string{string(m.state.Mode)}, info...)
	}
	if m.state.ExpectedBytes > 0 {
		eta := formatETA(m.percent(), m.state.ThroughputBPms, m.state.ExpectedBytes, m.state.Bytes)
		info = append(info, "ETA: "+eta)
	}
	sb.WriteString(m.infoStyle.Render(strings.Join(info, " | ")) + "\n")
	sb.WriteString(m.progress.ViewAs(m.percent()) + "\n")

	var footer string
	switch {
	case m.state.Done && m.state.Err != nil:
		footer = m.errorStyle.Render("Save failed: " + m.state.Err.Error())
	case m.state.Done:
		footer = m.successStyle.Render("Saved " + formatBytes(m.state.Bytes))
	case m.cancelled:
		footer = m.helpStyle.Render("Cancelling... ctrl+c again to leave now")
	default:
		footer = m.helpStyle.Render("ctrl+c: cancel")
	}
	sb.WriteString(footer)

	return sb.String()
}

func formatBytes(n int64) string {
	b := float64(n)
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB", b/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.2f MB", b/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.2f KB", b/1024)
	}
	return fmt.Sprintf("%d B", n)
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	remainingMs := float64(remainingBytes) / bytesPerMs
	d := time.Duration(remainingMs) * time.Millisecond

	if d.Hours() > 24 {
		return "> 1d"
	}

	return d.Round(time.Second).String()
}
