package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/insightd-go/internal/db"
	"github.com/raphaelgruber/insightd-go/internal/models"
	"github.com/spf13/cobra"
)

const watchPollInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch pipeline progress",
	Long: `Live view of the memory backlog draining into insights: per-status
counts, a progress bar over settled records, and insight totals by type.
Intended to run next to 'insightd serve'. Press q to quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Theme holds the color scheme for the watch display.
type Theme struct {
	Header  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Header:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Header).Bold(true)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers the next poll.
type tickMsg time.Time

// statsMsg carries one poll of pipeline counts.
type statsMsg struct {
	memories map[string]int
	insights map[string]int
	err      error
}

// watchModel is the bubbletea model for the live pipeline view.
type watchModel struct {
	client   *db.Client
	progress progress.Model
	theme    Theme

	memories map[string]int
	insights map[string]int
	err      error
	quitting bool
}

func newWatchModel(client *db.Client) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return watchModel{
		client:   client,
		progress: prog,
		theme:    defaultTheme,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchStats(),
		m.progress.Init(),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStats()

	case statsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.memories = msg.memories
		m.insights = msg.insights
		return m, watchTickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("✗ watch failed: %v\n", m.err))
	}
	if m.memories == nil {
		return "Loading pipeline status...\n"
	}

	total := 0
	for _, n := range m.memories {
		total += n
	}
	settled := m.memories[string(models.MemoryStatusReady)] +
		m.memories[string(models.MemoryStatusFailedPermanent)]

	var pct float64
	if total > 0 {
		pct = float64(settled) / float64(total)
	}

	out := m.theme.headerStyle().Render("Memory pipeline") + "\n"
	out += fmt.Sprintf("%s %d/%d settled\n\n", m.progress.ViewAs(pct), settled, total)

	out += fmt.Sprintf("  %-12s %s\n", "pending", countCell(m.memories, models.MemoryStatusPending))
	out += fmt.Sprintf("  %-12s %s\n", "processing", countCell(m.memories, models.MemoryStatusProcessing))
	out += fmt.Sprintf("  %-12s %s\n", "ready",
		m.theme.successStyle().Render(countCell(m.memories, models.MemoryStatusReady)))
	out += fmt.Sprintf("  %-12s %s\n", "failed", countCell(m.memories, models.MemoryStatusFailed))
	if n := m.memories[string(models.MemoryStatusFailedPermanent)]; n > 0 {
		out += fmt.Sprintf("  %-12s %s\n", "permanent",
			m.theme.errorStyle().Render(fmt.Sprintf("%d", n)))
	}

	if len(m.insights) > 0 {
		out += "\n" + m.theme.headerStyle().Render("Insights by type") + "\n"
		types := make([]string, 0, len(m.insights))
		for t := range m.insights {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			out += fmt.Sprintf("  %-12s %d\n", t, m.insights[t])
		}
	}

	out += "\n" + m.theme.hintStyle().Render("Press q to quit") + "\n"
	return out
}

func countCell(counts map[string]int, status models.MemoryStatus) string {
	return fmt.Sprintf("%d", counts[string(status)])
}

// fetchStats polls the record store off the Update loop.
func (m watchModel) fetchStats() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		memories, err := m.client.CountMemoriesByStatus(ctx)
		if err != nil {
			return statsMsg{err: err}
		}
		insights, err := m.client.CountInsightsByType(ctx)
		if err != nil {
			return statsMsg{err: err}
		}
		return statsMsg{memories: memories, insights: insights}
	}
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(watchPollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	p := tea.NewProgram(newWatchModel(dbClient))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("watch UI error: %w", err)
	}
	if m, ok := finalModel.(watchModel); ok && m.err != nil {
		exitWithError("%v", m.err)
	}
	return nil
}
