package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/pinwheel-io/pinwheel/service"
)

const maxEventLines = 256

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Faint(true)
	risingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	fallingSt   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Root is the terminal UI of the daemon: a live table of driven pins
// and a scrolling log of accepted edge events.
type Root struct {
	runtime service.Service
	events  chan service.EdgeEvent

	width  int
	height int

	lines    []string
	viewPort viewport.Model
	ready    bool
}

var _ tea.Model = Root{}

// New creates the root model and subscribes it to the runtime's edge
// events. Call Close after the program finished.
func New(runtime service.Service) (Root, error) {
	r := Root{
		runtime: runtime,
		events:  make(chan service.EdgeEvent, 64),
	}
	if err := runtime.Subscribe(r.onEdge); err != nil {
		return Root{}, err
	}
	return r, nil
}

// Close unsubscribes from the runtime.
func (r Root) Close() error {
	return r.runtime.Unsubscribe(r.onEdge)
}

func (r Root) onEdge(evt service.EdgeEvent) {
	select {
	case r.events <- evt:
	default:
		// UI lagging, drop the event.
	}
}

// Init is the first function that will be called. It returns an optional
// initial command. To not perform an initial command return nil.
func (r Root) Init() tea.Cmd {
	return tea.Batch(r.waitForEdge(), doRefresh())
}

// Update is called when a message is received. Use it to inspect messages
// and, in response, update the model and/or send a command.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case edgeMsg:
		r.appendEvent(service.EdgeEvent(msg))
		cmds = append(cmds, r.waitForEdge())
	case refreshMsg:
		cmds = append(cmds, doRefresh())
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		headerHeight := lipgloss.Height(r.headerView())
		if !r.ready {
			r.viewPort = viewport.New(msg.Width, msg.Height-headerHeight)
			r.viewPort.YPosition = headerHeight
			r.ready = true
		} else {
			r.viewPort.Width = msg.Width
			r.viewPort.Height = msg.Height - headerHeight
		}
		r.viewPort.SetContent(strings.Join(r.lines, "\n"))
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return r, tea.Quit
		case "c":
			r.lines = nil
			r.viewPort.SetContent("")
		}
	}

	// Handle keyboard and mouse events in the viewport
	if r.ready {
		var cmd tea.Cmd
		r.viewPort, cmd = r.viewPort.Update(msg)
		cmds = append(cmds, cmd)
	}

	return r, tea.Batch(cmds...)
}

// View renders the program's UI, which is just a string. The view is
// rendered after every Update.
func (r Root) View() string {
	if !r.ready {
		return "Starting..."
	}
	return r.headerView() + r.viewPort.View()
}

func (r Root) headerView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("pinwheel pin monitor"))
	b.WriteString("   c - Clear   q - Quit\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-5s %-10s %-9s %-12s %-12s", "PIN", "DRIVER", "MODE", "DISPATCHED", "REJECTED")))
	b.WriteString("\n")
	for _, st := range r.runtime.InterruptStatus() {
		b.WriteString(fmt.Sprintf("%-5d %-10s %-9s %-12s %-12s\n",
			st.Pin, "interrupt", st.Mode.String(),
			humanize.Comma(int64(st.Dispatched)),
			humanize.Comma(int64(st.Rejected))))
	}
	for _, st := range r.runtime.PWMStatus() {
		b.WriteString(fmt.Sprintf("%-5d %-10s %-9s %6.1f Hz  %5.1f %%\n",
			st.Pin, "pwm", st.Backend.String(), st.FrequencyHz, st.DutyPercent))
	}
	b.WriteString("\n")
	return b.String()
}

func (r *Root) appendEvent(evt service.EdgeEvent) {
	direction := risingStyle.Render("rising ")
	if !evt.Rising {
		direction = fallingSt.Render("falling")
	}
	line := fmt.Sprintf("%s  pin %-3d %s  seq %d",
		evt.When.Format("15:04:05.000"), evt.Pin, direction, evt.Seqno)
	r.lines = append(r.lines, line)
	if len(r.lines) > maxEventLines {
		r.lines = r.lines[len(r.lines)-maxEventLines:]
	}
	if r.ready {
		r.viewPort.SetContent(strings.Join(r.lines, "\n"))
		r.viewPort.GotoBottom()
	}
}

type edgeMsg service.EdgeEvent

// waitForEdge delivers the next accepted edge event to the UI.
func (r Root) waitForEdge() tea.Cmd {
	return func() tea.Msg {
		return edgeMsg(<-r.events)
	}
}

type refreshMsg struct{}

// doRefresh redraws the pin table periodically.
func doRefresh() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return refreshMsg{}
	})
}
