package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/rlch/cuke"
	"github.com/rlch/cuke/event"
	"github.com/rlch/cuke/runner"
)

// TUI renders a live, animated view of the run: a feature tree with a
// spinner per running scenario, a progress bar, and a static final report
// printed once the alternate screen closes.
type TUI struct {
	program *tea.Program
	model   *tuiModel
	out     io.Writer
	errw    io.Writer

	mu       sync.Mutex
	finished bool
}

// NewTUI creates a TUI writer over the features about to run. Parse failures
// and other out-of-band errors go to errw, since the alternate screen owns
// the main stream.
func NewTUI(out, errw io.Writer, features []*cuke.Feature) *TUI {
	model := newTUIModel(features)

	opts := []tea.ProgramOption{
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
		tea.WithAltScreen(), // keep the animation out of scrollback
	}

	if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		opts = append(opts, tea.WithInput(nil))
	}

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
		out:     out,
		errw:    errw,
	}
}

// Start launches the rendering loop. Call it before the run begins.
func (t *TUI) Start() error {
	go func() {
		_, _ = t.program.Run()
	}()

	// Give the program a moment to claim the terminal.
	time.Sleep(20 * time.Millisecond)

	return nil
}

// Event forwards one event into the rendering loop. The final RunFinished
// shuts the loop down and prints the report.
func (t *TUI) Event(_ context.Context, ev event.Event, res *runner.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil
	}

	if _, ok := ev.(event.RunFinished); ok {
		t.finished = true

		return t.finish(res)
	}

	t.program.Send(eventMsg{flatten(ev)})

	return nil
}

// Err reports a parse failure on the side stream.
func (t *TUI) Err(err error) error {
	_, werr := fmt.Fprintln(t.errw, err)

	return werr
}

// Stop tears the live view down without a final report. It is a no-op after
// the run finished normally; callers defer it for runs that abort early.
func (t *TUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return
	}
	t.finished = true

	t.program.Quit()
	time.Sleep(50 * time.Millisecond)
}

func (t *TUI) finish(res *runner.Result) error {
	t.program.Send(doneMsg{result: res})
	time.Sleep(50 * time.Millisecond)

	// Quit and wait for the program to restore the main screen.
	t.program.Quit()
	time.Sleep(50 * time.Millisecond)

	_, err := fmt.Fprintln(t.out, t.model.FinalView())

	return err
}

// =============================================================================
// Tree model, built from the parsed features before the run
// =============================================================================

// nodeKind identifies the tree level of a displayed node.
type nodeKind int

const (
	nodeFeature nodeKind = iota
	nodeRule
	nodeScenario
)

// nodeStatus tracks the rendered state of a node.
type nodeStatus int

const (
	statusPending nodeStatus = iota
	statusRunning
	statusPass
	statusFail
	statusSkip
)

// treeNode is one feature, rule, or scenario in the displayed tree.
type treeNode struct {
	name     string
	path     string
	kind     nodeKind
	status   nodeStatus
	children []*treeNode

	// scenario leaves
	startedAt time.Time
	elapsed   time.Duration
	attempt   int
	failed    bool
	skipped   bool
	err       error
}

// buildTree shapes the features into display trees, a feature's rules and
// direct scenarios interleaved in document order, and indexes scenario nodes
// by their tree identity.
func buildTree(features []*cuke.Feature) ([]*treeNode, map[int64]*treeNode) {
	idx := make(map[int64]*treeNode)
	roots := make([]*treeNode, 0, len(features))

	for _, f := range features {
		root := &treeNode{
			name: f.String(),
			path: f.Path,
			kind: nodeFeature,
		}

		type child struct {
			pos  cuke.Position
			node *treeNode
		}
		kids := make([]child, 0, len(f.Scenarios)+len(f.Rules))

		for _, sc := range f.Scenarios {
			kids = append(kids, child{sc.Pos, newScenarioNode(sc, idx)})
		}
		for _, r := range f.Rules {
			rn := &treeNode{name: r.String(), kind: nodeRule}
			for _, sc := range r.Scenarios {
				rn.children = append(rn.children, newScenarioNode(sc, idx))
			}
			kids = append(kids, child{r.Pos, rn})
		}

		slices.SortFunc(kids, func(a, b child) int {
			if a.pos.Before(b.pos) {
				return -1
			}
			if b.pos.Before(a.pos) {
				return 1
			}

			return 0
		})

		for _, k := range kids {
			root.children = append(root.children, k.node)
		}

		roots = append(roots, root)
	}

	return roots, idx
}

func newScenarioNode(sc *cuke.Scenario, idx map[int64]*treeNode) *treeNode {
	n := &treeNode{name: sc.String(), kind: nodeScenario}
	idx[sc.ID] = n

	return n
}

// =============================================================================
// Bubbletea model
// =============================================================================

// tuiModel is the bubbletea model behind the live view.
type tuiModel struct {
	styles  *Styles
	spinner spinner.Model

	width  int
	height int

	roots []*treeNode
	idx   map[int64]*treeNode

	counters  counters
	startTime time.Time
	endTime   time.Time

	result *runner.Result
	done   bool
}

type counters struct {
	total   int
	passed  int
	failed  int
	skipped int
}

// Messages
type (
	tickMsg  time.Time
	eventMsg struct{ f flat }
	doneMsg  struct{ result *runner.Result }
)

func newTUIModel(features []*cuke.Feature) *tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: SpinnerFrames(),
		FPS:    time.Second / 10,
	}
	s.Style = DefaultStyles().Running

	roots, idx := buildTree(features)

	total := 0
	for _, f := range features {
		total += f.CountScenarios()
	}

	return &tuiModel{
		styles:    DefaultStyles(),
		spinner:   s,
		roots:     roots,
		idx:       idx,
		startTime: time.Now(),
		width:     80,
		height:    24,
		counters:  counters{total: total},
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.tick(),
	)
}

func (m *tuiModel) tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.QuitMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		return m, nil

	case tickMsg:
		if !m.done {
			cmds = append(cmds, m.tick())
		}

	case spinner.TickMsg:
		if !m.done {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case eventMsg:
		m.apply(msg.f)

	case doneMsg:
		m.done = true
		m.endTime = time.Now()
		m.result = msg.result
	}

	return m, tea.Batch(cmds...)
}

// apply folds one flattened event into the scenario tree.
func (m *tuiModel) apply(f flat) {
	if f.scenario == nil {
		return
	}

	node, ok := m.idx[f.scenario.ID]
	if !ok {
		return
	}

	switch f.kind {
	case kindScenarioStarted:
		node.status = statusRunning
		node.startedAt = f.time
		if f.retries != nil {
			node.attempt = f.retries.Current
		}

	case kindStepFailed, kindHookFailed:
		node.failed = true
		if node.err == nil {
			node.err = f.err
		}

	case kindStepSkipped:
		node.skipped = true

	case kindScenarioFinished:
		if f.willRetry {
			// The next attempt starts from a clean slate.
			node.status = statusRunning
			node.failed = false
			node.skipped = false
			node.err = nil

			return
		}

		node.elapsed = f.time.Sub(node.startedAt)

		switch {
		case node.failed:
			node.status = statusFail
			m.counters.failed++
		case node.skipped:
			node.status = statusSkip
			m.counters.skipped++
		default:
			node.status = statusPass
			m.counters.passed++
		}
	}
}

// clearEOL is the ANSI escape sequence to clear from cursor to end of line.
const clearEOL = "\033[K"

// FinalView renders the complete output for printing after the TUI exits,
// without the clear-to-EOL sequences the live view needs.
func (m *tuiModel) FinalView() string {
	var lines []string

	lines = append(lines, m.renderHeader())
	lines = append(lines, m.renderProgress())
	lines = append(lines, "")

	for _, root := range m.roots {
		treeLines := strings.Split(strings.TrimSuffix(m.renderTree(root), "\n"), "\n")
		lines = append(lines, treeLines...)
	}

	lines = append(lines, "")
	lines = append(lines, m.renderSummary())

	return strings.Join(lines, "\n")
}

func (m *tuiModel) View() string {
	var lines []string

	lines = append(lines, m.renderHeader())
	lines = append(lines, m.renderProgress())
	lines = append(lines, "")

	for _, root := range m.roots {
		treeLines := strings.Split(strings.TrimSuffix(m.renderTree(root), "\n"), "\n")
		lines = append(lines, treeLines...)
	}

	if m.done {
		lines = append(lines, "")
		lines = append(lines, m.renderSummary())
	}

	// Clear to EOL on every line to prevent rendering artifacts.
	for i := range lines {
		lines[i] += clearEOL
	}

	return strings.Join(lines, "\n") + "\n"
}

func (m *tuiModel) renderHeader() string {
	logo := m.styles.Bold.Render("cuke")
	subtitle := m.styles.Dim.Render(" run")

	var status string

	switch {
	case m.done && m.result != nil && !m.result.Ok():
		status = m.styles.Fail.Render("FAIL")
	case m.done:
		status = m.styles.Pass.Render("PASS")
	default:
		if running := m.countRunning(); running > 0 {
			status = m.styles.Running.Render(fmt.Sprintf("running %d", running))
		} else {
			status = m.styles.Dim.Render("starting")
		}
	}

	return fmt.Sprintf("%s%s  %s", logo, subtitle, status)
}

func (m *tuiModel) countRunning() int {
	count := 0

	for _, node := range m.idx {
		if node.status == statusRunning {
			count++
		}
	}

	return count
}

func (m *tuiModel) renderProgress() string {
	done := m.counters.passed + m.counters.failed + m.counters.skipped
	total := m.counters.total

	if total == 0 {
		total = 1
	}

	pct := float64(done) / float64(total)

	elapsed := time.Since(m.startTime)
	if !m.endTime.IsZero() {
		elapsed = m.endTime.Sub(m.startTime)
	}

	elapsedStr := m.styles.Dim.Render(fmt.Sprintf("[%s]", formatDuration(elapsed)))

	barWidth := 30
	filled := int(pct * float64(barWidth))
	filledChar, emptyChar := ProgressChars()

	bar := m.styles.ProgressFilled.Render(strings.Repeat(filledChar, filled)) +
		m.styles.ProgressEmpty.Render(strings.Repeat(emptyChar, barWidth-filled))

	counter := m.styles.Muted.Render(fmt.Sprintf("%d/%d", done, total))

	return fmt.Sprintf("%s %s %s", elapsedStr, bar, counter)
}

func (m *tuiModel) renderTree(root *treeNode) string {
	var b strings.Builder

	b.WriteString(m.styles.Bold.Render(root.name))
	if root.path != "" {
		b.WriteString("  ")
		b.WriteString(m.styles.Path.Render("# " + root.path))
	}
	b.WriteString("\n")

	for i, child := range root.children {
		m.renderNode(&b, child, "", i == len(root.children)-1)
	}

	b.WriteString("\n")

	return b.String()
}

// groupStatus derives a feature or rule node's status from its children.
func (m *tuiModel) groupStatus(node *treeNode) nodeStatus {
	if node.kind == nodeScenario {
		return node.status
	}

	hasRunning := false
	hasFailed := false
	hasPending := false

	for _, child := range node.children {
		switch m.groupStatus(child) {
		case statusRunning:
			hasRunning = true
		case statusFail:
			hasFailed = true
		case statusPending:
			hasPending = true
		case statusPass, statusSkip:
		}
	}

	switch {
	case hasRunning:
		return statusRunning
	case hasFailed:
		return statusFail
	case hasPending:
		return statusPending
	case len(node.children) > 0:
		return statusPass
	}

	return statusPending
}

func (m *tuiModel) renderNode(b *strings.Builder, node *treeNode, prefix string, isLast bool) {
	branch := "├─"
	if isLast {
		branch = "╰─"
	}

	symbol := m.renderSymbol(node)

	name := node.name
	switch node.kind {
	case nodeRule:
		name = m.styles.Muted.Render(name)
	case nodeScenario:
		name = m.styles.ScenarioName.Render(name)
		if node.attempt > 0 {
			name += m.styles.Running.Render(fmt.Sprintf(" (attempt %d)", node.attempt+1))
		}
	case nodeFeature:
	}

	dur := ""
	if node.kind == nodeScenario && node.status != statusPending && node.status != statusRunning {
		dur = m.styles.Dim.Render(fmt.Sprintf("  [%s]", formatDuration(node.elapsed)))
	}

	b.WriteString(m.styles.Dim.Render(prefix + branch + " "))
	b.WriteString(symbol)
	b.WriteString(" ")
	b.WriteString(name)
	b.WriteString(dur)
	b.WriteString("\n")

	// Failure detail, indented under the scenario.
	if node.status == statusFail && node.err != nil {
		detailPrefix := prefix
		if isLast {
			detailPrefix += "  "
		} else {
			detailPrefix += "│ "
		}

		b.WriteString(m.styles.Dim.Render(detailPrefix + "   "))
		b.WriteString(m.styles.Error.Render(node.err.Error()))
		b.WriteString("\n")
	}

	childPrefix := prefix
	if isLast {
		childPrefix += "  "
	} else {
		childPrefix += "│ "
	}

	for i, child := range node.children {
		m.renderNode(b, child, childPrefix, i == len(node.children)-1)
	}
}

func (m *tuiModel) renderSymbol(node *treeNode) string {
	status := node.status
	if node.kind != nodeScenario {
		status = m.groupStatus(node)
	}

	switch status {
	case statusPending:
		return m.styles.Dim.Render("⋯")
	case statusRunning:
		return m.spinner.View()
	case statusPass:
		return m.styles.Pass.Render(m.styles.SymbolPass)
	case statusFail:
		return m.styles.Fail.Render(m.styles.SymbolFail)
	case statusSkip:
		return m.styles.Skip.Render(m.styles.SymbolSkip)
	}

	return " "
}

func (m *tuiModel) renderSummary() string {
	var parts []string

	if m.counters.passed > 0 {
		parts = append(parts, m.styles.Pass.Render(fmt.Sprintf("%d passed", m.counters.passed)))
	}
	if m.counters.failed > 0 {
		parts = append(parts, m.styles.Fail.Render(fmt.Sprintf("%d failed", m.counters.failed)))
	}
	if m.counters.skipped > 0 {
		parts = append(parts, m.styles.Skip.Render(fmt.Sprintf("%d skipped", m.counters.skipped)))
	}
	if m.result != nil && m.result.ParseErrors > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("%d parse errors", m.result.ParseErrors)))
	}

	if len(parts) == 0 {
		return m.styles.Dim.Render("  no scenarios run")
	}

	total := m.styles.Muted.Render(fmt.Sprintf("(%d total)", m.counters.total))
	sep := m.styles.Dim.Render(" │ ")

	return "  " + strings.Join(parts, sep) + " " + total
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}

	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
