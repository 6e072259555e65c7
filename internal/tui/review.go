package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aegisd/aegis/internal/policy"
	"github.com/aegisd/aegis/internal/suspend"
)

// ItemDecision is one reviewed item as the operator left it.
type ItemDecision struct {
	Decided  bool
	Approved bool
	Scope    policy.Scope
	Reason   string
}

// Outcome is what the review session produced. When Submitted is false the
// operator aborted and nothing should be resumed.
type Outcome struct {
	Submitted bool
	Decisions map[string]ItemDecision
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6")).
			Bold(true)

	approvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	deniedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	undecidedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	detailBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("7")).
				PaddingLeft(1)

	riskCriticalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	riskModerateStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("3"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Approve key.Binding
	Deny    key.Binding
	Scope   key.Binding
	Reason  key.Binding
	Submit  key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Approve, k.Deny, k.Scope, k.Reason, k.Submit, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Approve, k.Deny, k.Scope, k.Reason},
		{k.Submit, k.Quit},
	}
}

var defaultKeys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
	Approve: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve")),
	Deny:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "deny")),
	Scope:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "cycle scope")),
	Reason:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "note")),
	Submit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "abort")),
}

type mode int

const (
	modeBrowse mode = iota
	modeReason
)

type model struct {
	rec       suspend.Record
	items     []suspend.PendingItem
	decisions []ItemDecision
	cursor    int
	mode      mode
	keys      keyMap
	help      help.Model
	reason    textinput.Model
	submitted bool
}

func newModel(rec suspend.Record) model {
	reason := textinput.New()
	reason.Placeholder = "optional note"
	reason.CharLimit = 200
	reason.Width = 60

	decisions := make([]ItemDecision, len(rec.Payload.Items))
	for i := range decisions {
		decisions[i].Scope = policy.ScopeOnce
	}

	return model{
		rec:       rec,
		items:     rec.Payload.Items,
		decisions: decisions,
		keys:      defaultKeys,
		help:      help.New(),
		reason:    reason,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeReason {
			switch msg.Type {
			case tea.KeyEnter:
				m.decisions[m.cursor].Reason = strings.TrimSpace(m.reason.Value())
				m.mode = modeBrowse
				m.reason.Blur()
				return m, nil
			case tea.KeyEsc:
				m.mode = modeBrowse
				m.reason.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.reason, cmd = m.reason.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}

		case key.Matches(msg, m.keys.Approve):
			m.decisions[m.cursor].Decided = true
			m.decisions[m.cursor].Approved = true

		case key.Matches(msg, m.keys.Deny):
			m.decisions[m.cursor].Decided = true
			m.decisions[m.cursor].Approved = false

		case key.Matches(msg, m.keys.Scope):
			m.decisions[m.cursor].Scope = nextScope(m.items[m.cursor], m.decisions[m.cursor].Scope)

		case key.Matches(msg, m.keys.Reason):
			m.mode = modeReason
			m.reason.SetValue(m.decisions[m.cursor].Reason)
			m.reason.Focus()
			return m, textinput.Blink

		case key.Matches(msg, m.keys.Submit):
			m.submitted = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Suspension %s / %s", m.rec.ID, m.rec.ConversationID)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	for i, item := range m.items {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}

		status := undecidedStyle.Render("undecided")
		if m.decisions[i].Decided {
			if m.decisions[i].Approved {
				status = approvedStyle.Render(fmt.Sprintf("approve (%s)", m.decisions[i].Scope))
			} else {
				status = deniedStyle.Render(fmt.Sprintf("deny (%s)", m.decisions[i].Scope))
			}
		}

		b.WriteString(fmt.Sprintf("%s%-40s %s\n", marker, item.Summary, status))
	}

	if len(m.items) > 0 {
		b.WriteString("\n")
		b.WriteString(m.detailView(m.items[m.cursor]))
	}

	if m.mode == modeReason {
		b.WriteString("\nNote: " + m.reason.View() + "\n")
	} else {
		b.WriteString("\n" + m.help.View(m.keys) + "\n")
	}

	return b.String()
}

func (m model) detailView(item suspend.PendingItem) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Tool:      %s", item.Tool))
	lines = append(lines, fmt.Sprintf("Operation: %s", item.OperationKey))

	risk := item.Risk
	switch policy.RiskLevel(item.Risk) {
	case policy.RiskCritical, policy.RiskDangerous:
		risk = riskCriticalStyle.Render(risk)
	case policy.RiskModerate:
		risk = riskModerateStyle.Render(risk)
	}
	lines = append(lines, fmt.Sprintf("Risk:      %s   Reversible: %t", risk, item.Reversible))

	if len(item.AffectedResources) > 0 {
		lines = append(lines, fmt.Sprintf("Affects:   %s", strings.Join(item.AffectedResources, ", ")))
	}
	lines = append(lines, fmt.Sprintf("Scopes:    %s", strings.Join(item.AvailableScopes, ", ")))
	if item.Arguments != "" {
		lines = append(lines, dimStyle.Render(truncateLine(item.Arguments, 100)))
	}

	return detailBorderStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// nextScope cycles through the scopes the item's tool policy can persist.
func nextScope(item suspend.PendingItem, current policy.Scope) policy.Scope {
	scopes := item.AvailableScopes
	if len(scopes) == 0 {
		return policy.ScopeOnce
	}
	for i, s := range scopes {
		if policy.Scope(s) == current {
			return policy.Scope(scopes[(i+1)%len(scopes)])
		}
	}
	return policy.Scope(scopes[0])
}

func truncateLine(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// RunReview drives the interactive review for one suspension and returns
// the operator's decisions.
func RunReview(rec suspend.Record) (Outcome, error) {
	p := tea.NewProgram(newModel(rec), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Outcome{}, err
	}

	m, ok := final.(model)
	if !ok {
		return Outcome{}, fmt.Errorf("unexpected review model state")
	}

	outcome := Outcome{Submitted: m.submitted, Decisions: make(map[string]ItemDecision, len(m.items))}
	for i, item := range m.items {
		outcome.Decisions[item.CallID] = m.decisions[i]
	}
	return outcome, nil
}
