package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	scoredomain "github.com/Black-And-White-Club/judgeboard/app/modules/score/domain"
	"github.com/Black-And-White-Club/judgeboard/client/savecoord"
)

var statusColors = map[scoredomain.Status]lipgloss.Color{
	scoredomain.StatusComplete:       lipgloss.Color("#50FA7B"),
	scoredomain.StatusIncomplete:     lipgloss.Color("#F1FA8C"),
	scoredomain.StatusNotStarted:     lipgloss.Color("#888888"),
	scoredomain.StatusNoShow:         lipgloss.Color("#FF6B6B"),
	scoredomain.StatusNoOrganization: lipgloss.Color("#BD93F9"),
}

var statusLabels = map[scoredomain.Status]string{
	scoredomain.StatusComplete:       "Complete",
	scoredomain.StatusIncomplete:     "Incomplete",
	scoredomain.StatusNotStarted:     "Not started",
	scoredomain.StatusNoShow:         "No show",
	scoredomain.StatusNoOrganization: "No organization",
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	focusedBoxStyle = boxStyle.BorderForeground(lipgloss.Color("#5B8DEF"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	selectedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#3A3F58"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
)

func statusStyle(s scoredomain.Status) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(statusColors[s])
}

// View renders the console.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}

	connection := statusStyle(scoredomain.StatusComplete).Render("online")
	if !a.online {
		connection = warnStyle.Render("offline")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("JUDGEBOARD"),
		dimStyle.Render(fmt.Sprintf("  event %s · judge %s · ", a.deps.EventID, a.deps.JudgeID)),
		connection,
	)

	sections := []string{header, a.renderOverview(), a.renderJumpBar()}

	entries := a.renderEntries()
	queue := a.renderQueue()
	entriesBox, queueBox := boxStyle, boxStyle
	if a.focus == focusEntries {
		entriesBox = focusedBoxStyle
	} else {
		queueBox = focusedBoxStyle
	}
	queueWidth := max(30, width/3)
	entriesWidth := max(40, width-queueWidth-4)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		entriesBox.Width(entriesWidth).Render(entries),
		queueBox.Width(queueWidth).Render(queue),
	))

	footer := dimStyle.Render(a.statusMsg)
	sections = append(sections, footer, a.help.View(a.keys))
	return strings.Join(sections, "\n")
}

// renderOverview shows the per-status counts.
func (a *App) renderOverview() string {
	summary := a.Overview()
	parts := make([]string, 0, len(scoredomain.AllStatuses))
	for _, s := range scoredomain.AllStatuses {
		parts = append(parts, statusStyle(s).Render(fmt.Sprintf("%s %d", statusLabels[s], summary[s])))
	}
	return strings.Join(parts, dimStyle.Render(" · "))
}

// renderJumpBar draws one colored cell per entry in listing order.
func (a *App) renderJumpBar() string {
	var b strings.Builder
	for i, r := range a.rows {
		cell := "■"
		if i == a.selected {
			cell = "▣"
		}
		b.WriteString(statusStyle(r.status(a.categories)).Render(cell))
	}
	return b.String()
}

func (a *App) renderEntries() string {
	if a.loading {
		return "Loading entries..."
	}
	if len(a.rows) == 0 {
		if a.err != nil {
			return warnStyle.Render("No entries: " + a.err.Error())
		}
		return dimStyle.Render("No entries for this judge")
	}

	lines := make([]string, 0, len(a.rows)+2)
	for i, r := range a.rows {
		status := r.status(a.categories)
		position := "  -"
		if r.entry.Position != nil {
			position = fmt.Sprintf("%3d", *r.entry.Position)
		}
		marker := " "
		if a.deps.Saver != nil {
			switch a.deps.Saver.State(r.entry.ID) {
			case savecoord.StateSaving, savecoord.StateRetrying:
				marker = "…"
			case savecoord.StateQueued:
				marker = "⇡"
			case savecoord.StateRejected:
				marker = "!"
			}
		}
		line := fmt.Sprintf("%s %s %-28s %-16s %3d", position, marker, truncate(r.entry.Name, 28), statusLabels[status], r.values.Total())
		if i == a.selected {
			lines = append(lines, selectedStyle.Render(line))
			lines = append(lines, a.renderCategories(r))
			continue
		}
		lines = append(lines, statusStyle(status).Render(line))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderCategories(r row) string {
	cells := make([]string, 0, len(a.categories))
	for i, c := range a.categories {
		value := "–"
		if v := r.values.Get(c.Name); !v.IsNull() {
			value = v.String()
		}
		name := c.Name
		if c.Required {
			name += "*"
		}
		cell := fmt.Sprintf("%s: %s", name, value)
		if i == a.category {
			cell = selectedStyle.Render("[" + cell + "]")
		} else {
			cell = dimStyle.Render(" " + cell + " ")
		}
		cells = append(cells, cell)
	}
	return "      " + strings.Join(cells, " ")
}

func (a *App) renderQueue() string {
	title := fmt.Sprintf("QUEUE · %d pending", len(a.queueItems))
	if len(a.queueItems) == 0 {
		return title + "\n" + dimStyle.Render("All writes synced")
	}
	lines := []string{title}
	for i, m := range a.queueItems {
		line := fmt.Sprintf("%s retries %d", truncate(a.entryName(m.EntryID), 18), m.RetryCount)
		if m.NeedsAttention {
			line = warnStyle.Render(line + " needs attention")
		}
		if a.focus == focusQueue && i == a.queueSel {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
