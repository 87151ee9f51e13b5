package client

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	alertBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	alertTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	alertBody   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	alertFooter = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// TerminalAlerter prints alerts as a bordered box and rings the terminal bell.
type TerminalAlerter struct {
	Out   io.Writer
	Bell  bool
	Clock func() time.Time
}

func (t *TerminalAlerter) Alert(a Alert) error {
	now := time.Now
	if t.Clock != nil {
		now = t.Clock
	}
	content := alertTitle.Render(a.Title)
	if a.Body != "" {
		content += "\n" + alertBody.Render(a.Body)
	}
	footer := fmt.Sprintf("%s via %s", now().Format("15:04:05"), a.Source)
	if a.URL != "" {
		footer += "  " + a.URL
	}
	content += "\n" + alertFooter.Render(footer)

	out := alertBox.Render(content) + "\n"
	if t.Bell {
		out = "\a" + out
	}
	_, err := io.WriteString(t.Out, out)
	return err
}
