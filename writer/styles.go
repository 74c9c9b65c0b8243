package writer

import "github.com/charmbracelet/lipgloss"

// Styles bundles the lipgloss styles shared by the pretty and TUI writers.
type Styles struct {
	Bold  lipgloss.Style
	Dim   lipgloss.Style
	Muted lipgloss.Style

	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Skip    lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style

	ScenarioName lipgloss.Style
	Path         lipgloss.Style

	ProgressFilled lipgloss.Style
	ProgressEmpty  lipgloss.Style

	SymbolPass string
	SymbolFail string
	SymbolSkip string
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() *Styles {
	return &Styles{
		Bold:  lipgloss.NewStyle().Bold(true),
		Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Skip:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),

		ScenarioName: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Path:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		ProgressFilled: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		ProgressEmpty:  lipgloss.NewStyle().Foreground(lipgloss.Color("238")),

		SymbolPass: "✓",
		SymbolFail: "✗",
		SymbolSkip: "-",
	}
}

// SpinnerFrames returns the frames of the running-scenario spinner.
func SpinnerFrames() []string {
	return []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
}

// ProgressChars returns the filled and empty runes of the progress bar.
func ProgressChars() (filled, empty string) {
	return "━", "─"
}
