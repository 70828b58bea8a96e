package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/knightlife/internal/view"
)

const (
	colorScarlet lipgloss.Color = "#cc0033"
	colorText    lipgloss.Color = "#e6e6e6"
	colorMuted   lipgloss.Color = "#8a8a8a"
	colorGreen   lipgloss.Color = "#a6e3a1"
	colorRed     lipgloss.Color = "#f38ba8"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorScarlet)
	tabStyle      = lipgloss.NewStyle().Padding(0, 1).Foreground(colorMuted)
	activeTab     = tabStyle.Foreground(colorText).Bold(true).Underline(true)
	cardStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = cardStyle.Foreground(colorScarlet).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	statusOK      = lipgloss.NewStyle().Foreground(colorGreen)
	statusErr     = lipgloss.NewStyle().Foreground(colorRed)
	footerStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	promptStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorScarlet).Padding(0, 1)
)

func (m Model) View() string {
	p := m.pane()
	var b strings.Builder

	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	title := p.title
	if p.admin.Active() {
		title += " (admin)"
	}
	if p.refreshing() {
		title += " ..."
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	cards := p.cards(p.expanded)
	if len(cards) == 0 {
		empty := view.Empty(p.noun)
		b.WriteString(cardStyle.Render(empty.Title))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("  " + empty.Subtitle))
		b.WriteString("\n")
	}
	for i, c := range cards {
		b.WriteString(renderCard(c, i == m.cursor))
	}

	switch m.mode {
	case modePassword:
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("Password: " + strings.Repeat("*", len([]rune(m.input)))))
		b.WriteString("\n")
	case modeCreate:
		b.WriteString("\n")
		b.WriteString(promptStyle.Render(m.renderForm()))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(statusErr.Render(m.status))
		} else {
			b.WriteString(statusOK.Render(m.status))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render(m.footer()))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.panes))
	for i, p := range m.panes {
		if i == m.active {
			tabs[i] = activeTab.Render(p.title)
		} else {
			tabs[i] = tabStyle.Render(p.title)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func renderCard(c view.Card, selected bool) string {
	style := cardStyle
	marker := "  "
	if selected {
		style = selectedStyle
		marker = "> "
	}
	var b strings.Builder
	b.WriteString(style.Render(marker + c.Title))
	if c.Subtitle != "" {
		b.WriteString("  " + c.Subtitle)
	}
	b.WriteString("\n")
	if c.Address != "" {
		b.WriteString(cardStyle.Render("    " + c.Address))
		b.WriteString("\n")
	}
	if c.Expanded && c.Details != "" {
		if c.Muted {
			b.WriteString(mutedStyle.Render("      " + c.Details))
		} else {
			b.WriteString(cardStyle.Render("    " + c.Details))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderForm() string {
	p := m.pane()
	lines := make([]string, 0, len(p.fields)+1)
	lines = append(lines, "New "+p.noun)
	for i, f := range p.fields {
		v := m.values[i]
		if i == m.field {
			v = m.input + "_"
		}
		lines = append(lines, fmt.Sprintf("%-13s %s", f+":", v))
	}
	return strings.Join(lines, "\n")
}

func (m Model) footer() string {
	switch m.mode {
	case modePassword:
		return "enter submit  esc cancel"
	case modeCreate:
		return "enter next  esc cancel"
	}
	keys := []string{"tab switch", "r refresh", "enter expand"}
	p := m.pane()
	if p.admin.Active() {
		keys = append(keys, "n new", "d delete", "l lock")
	} else if m.showLogin {
		keys = append(keys, "p password")
	}
	keys = append(keys, "q quit")
	return strings.Join(keys, "  ")
}
