package tui

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/runtime"
)

// runStatus is the operator-facing state shown in the detail bar.
type runStatus int

const (
	statusStopped runStatus = iota
	statusRunning
	statusStopping
	statusFinished
)

func (s runStatus) String() string {
	switch s {
	case statusRunning:
		return "Running"
	case statusStopping:
		return "Stopping"
	case statusFinished:
		return "Finished"
	default:
		return "Stopped"
	}
}

// --- Tea messages ---

// stepDoneMsg is sent when a cursor move issued in the background returns.
type stepDoneMsg struct {
	event runtime.Event
	rerun bool
}

// --- Model ---

// Model is the top-level Bubble Tea model for the TUI. While a step is in
// flight the cursor lock is held, so the model only touches the cursor from
// Update when status is not statusRunning or statusStopping.
type Model struct {
	cursor *runtime.Cursor
	ctx    context.Context

	// Components
	steps   stepsPanel
	output  outputPanel
	detail  detailBar
	spinner spinner.Model

	// State
	status runStatus
	cancel context.CancelFunc // cancels the in-flight step
	typing typingState

	// Help overlay
	showHelp bool
	helpText string

	// Start parameters
	title   string
	compact bool

	// Layout
	width  int
	height int
}

// Config holds the parameters needed to launch the TUI.
type Config struct {
	// Title is shown in the header, usually the workflow file name.
	Title   string
	Compact bool
}

// NewModel builds the model for cursor. ctx bounds every step it runs.
func NewModel(ctx context.Context, cursor *runtime.Cursor, cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		cursor:  cursor,
		ctx:     ctx,
		steps:   newStepsPanel(cursor.Workflow()),
		output:  newOutputPanel(),
		spinner: sp,
		title:   cfg.Title,
		compact: cfg.Compact,
	}
	if cursor.AtEnd() {
		m.status = statusFinished
	}
	m.refresh(true)
	return m
}

// Run starts the TUI and blocks until the operator quits or ctx is done.
func Run(ctx context.Context, cursor *runtime.Cursor, cfg Config) error {
	p := tea.NewProgram(NewModel(ctx, cursor, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init starts the spinner; the operator drives every step.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Auto-detect compact mode for narrow terminals
		if msg.Width < 80 {
			m.compact = true
		}
		m.layoutPanels()
		if m.showHelp {
			m.helpText = renderMarkdownWidth(helpMarkdown, m.helpWidth())
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case typeTickMsg:
		if !m.typing.active || msg.gen != m.typing.gen {
			return m, nil
		}
		m.typing.shown++
		if m.typing.shown >= m.typing.total {
			m.typing.active = false
		}
		m.refreshOutput(true)
		if m.typing.active {
			return m, m.typing.tick()
		}

	case stepDoneMsg:
		return m.handleStepDone(msg)

	case tea.MouseMsg:
		m.output.Update(msg)
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	if m.showHelp {
		if key.Matches(msg, keys.Help) || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Advance):
		switch {
		case m.typing.active:
			m.finishTyping()
		case m.status == statusRunning:
			m.status = statusStopping
			if m.cancel != nil {
				m.cancel()
			}
		case m.status == statusStopping, m.status == statusFinished:
		default:
			cmd := m.startStep(false)
			return m, cmd
		}

	case key.Matches(msg, keys.Rewind):
		if m.busy() {
			return m, nil
		}
		m.finishTyping()
		m.cursor.Rewind()
		m.status = statusStopped
		m.refresh(true)

	case key.Matches(msg, keys.Rerun):
		if m.busy() || m.cursor.AtStart() {
			return m, nil
		}
		m.finishTyping()
		cmd := m.startStep(true)
		return m, cmd

	case key.Matches(msg, keys.Up):
		m.output.LineUp()

	case key.Matches(msg, keys.Down):
		m.output.LineDown()

	case key.Matches(msg, keys.PgUp):
		m.output.PageUp()

	case key.Matches(msg, keys.PgDown):
		m.output.PageDown()

	case key.Matches(msg, keys.Help):
		m.showHelp = true
		m.helpText = renderMarkdownWidth(helpMarkdown, m.helpWidth())
	}

	return m, nil
}

func (m Model) busy() bool {
	return m.status == statusRunning || m.status == statusStopping
}

// startStep moves the cursor forward in the background. rerun executes the
// current step again instead of moving to the next one.
func (m *Model) startStep(rerun bool) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.status = statusRunning
	cursor := m.cursor
	return func() tea.Msg {
		defer cancel()
		if rerun {
			return stepDoneMsg{event: cursor.Rerun(ctx), rerun: true}
		}
		return stepDoneMsg{event: cursor.Advance(ctx)}
	}
}

// handleStepDone records a finished move, starts typing a fresh message and
// keeps running the remaining iterations of a loop unless stopped. A rerun
// never continues into the next iteration.
func (m Model) handleStepDone(msg stepDoneMsg) (tea.Model, tea.Cmd) {
	ev := msg.event
	stopped := m.status == statusStopping
	m.cancel = nil
	m.status = statusStopped

	var cmd tea.Cmd
	if ev.Kind == runtime.Advanced && ev.Outcome != nil && ev.Outcome.Kind == providers.Displayed && ev.Outcome.Speed > 0 {
		m.typing = typingState{
			active: true,
			index:  ev.Position - 1,
			total:  utf8.RuneCountInString(ev.Outcome.Text),
			speed:  time.Duration(ev.Outcome.Speed) * time.Millisecond,
			gen:    m.typing.gen + 1,
		}
		if m.typing.total == 0 {
			m.typing.active = false
		} else {
			cmd = m.typing.tick()
		}
	}

	m.refresh(true)

	if !stopped && !msg.rerun && continuesLoop(ev) {
		next := m.startStep(false)
		return m, next
	}
	if m.cursor.AtEnd() {
		m.status = statusFinished
	}
	return m, cmd
}

// continuesLoop reports whether ev left the cursor in the middle of a loop.
func continuesLoop(ev runtime.Event) bool {
	if ev.Kind != runtime.Advanced && ev.Kind != runtime.Replayed {
		return false
	}
	if ev.Step == nil || ev.Step.Times <= 1 || ev.Step.Iteration+1 >= ev.Step.Times {
		return false
	}
	return ev.Outcome == nil || ev.Outcome.ErrorKind != providers.Interrupted
}

func (m *Model) finishTyping() {
	if !m.typing.active {
		return
	}
	m.typing.active = false
	m.refreshOutput(true)
}

// refresh re-reads the cursor into every panel.
func (m *Model) refresh(follow bool) {
	m.steps.Sync(m.cursor.History())
	m.detail.Set(m.cursor)
	m.refreshOutput(follow)
}

// refreshOutput re-renders the stage transcript. The visible stage is the
// stage of the current step, or of the first step before the run starts.
func (m *Model) refreshOutput(follow bool) {
	history := m.cursor.History()
	stage := -1
	if len(history) > 0 {
		stage = history[len(history)-1].Step.Stage
	} else if steps := m.cursor.Steps(); len(steps) > 0 {
		stage = steps[0].Stage
	}
	if stage < 0 {
		m.output.SetContent("Output", "  (workflow has no steps)", follow)
		return
	}
	name := m.cursor.Workflow().Stages[stage].Name
	m.output.SetContent(name, renderTranscript(name, stage, history, m.typing), follow)
}

// layoutPanels recalculates panel dimensions based on terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}

	// Layout: header(1) + main panels + detail bar(5)
	headerH := 1
	detailH := 5
	mainH := m.height - headerH - detailH
	if mainH < 4 {
		mainH = 4
	}

	if m.compact {
		m.steps.width = 0
		m.steps.height = 0
		m.output.SetSize(m.width, mainH)
	} else {
		// Steps panel: 30% width, minimum 25, maximum 45
		stepsW := m.width * 30 / 100
		if stepsW < 25 {
			stepsW = 25
		}
		if stepsW > 45 {
			stepsW = 45
		}
		m.steps.width = stepsW
		m.steps.height = mainH
		m.output.SetSize(m.width-stepsW, mainH)
	}

	m.detail.width = m.width
}

func (m Model) helpWidth() int {
	w := m.width - 12
	if w < 40 {
		w = 40
	}
	return w
}

// View renders the complete TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	if m.showHelp {
		box := overlayBorder.Width(m.helpWidth() + 4).Render(m.helpText + "\n\n" + keyBarText(m.status, true))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
	}

	header := m.renderHeader()

	var main string
	if m.compact {
		main = m.output.View()
	} else {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.steps.View(), m.output.View())
	}

	detail := m.detail.View(m.status, m.spinner.View(), false)
	return header + "\n" + main + "\n" + detail
}

// renderHeader builds the top header line.
func (m Model) renderHeader() string {
	title := headerStyle.Render("autopilot")

	total, passed, failed := m.steps.Stats()
	status := summaryCounts(passed, failed, total)
	if m.status == statusRunning {
		status = m.spinner.View() + " " + status
	}

	left := title + "  " + detailValueStyle.Render(m.title)
	right := status

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return left + strings.Repeat(" ", padding) + right
}

func summaryCounts(passed, failed, total int) string {
	return statusPassedStyle.Render(GlyphPassed+strconv.Itoa(passed)) + " " +
		statusFailedStyle.Render(GlyphFailed+strconv.Itoa(failed)) + " " +
		keyDescStyle.Render("/"+strconv.Itoa(total))
}
