package fleet

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/nagini/internal/protocol"
)

// Theme holds the styles of status output.
type Theme struct {
	Host    lipgloss.Style
	Alive   lipgloss.Style
	Dead    lipgloss.Style
	Running lipgloss.Style
	Queued  lipgloss.Style
	Dim     lipgloss.Style
	Warn    lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		Host:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Alive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Dead:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Queued:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")),
	}
}

// RenderStatus writes one block per host. When the reachable hosts report
// different config digests a warning line is appended.
func RenderStatus(w io.Writer, theme Theme, statuses []protocol.ServerStatus) {
	digests := map[string][]string{}
	for _, st := range statuses {
		fmt.Fprintln(w, renderHost(theme, st))
		if st.ConfigDigest != "" {
			digests[st.ConfigDigest] = append(digests[st.ConfigDigest], st.HostName)
		}
	}
	if len(digests) > 1 {
		fmt.Fprintln(w, theme.Warn.Render("warning: config differs across hosts: "+describeDigests(digests)))
	}
}

func renderHost(theme Theme, st protocol.ServerStatus) string {
	var b strings.Builder
	b.WriteString(theme.Host.Render(st.HostName))
	if st.ConfigDigest != "" {
		b.WriteString(" " + theme.Dim.Render("config "+shortDigest(st.ConfigDigest)))
	}
	if len(st.Nodes) == 0 {
		b.WriteString("\n  " + theme.Dim.Render("no nodes"))
	}
	for _, n := range st.Nodes {
		for _, svc := range n.Services {
			state := theme.Alive.Render("alive")
			if !svc.Alive {
				state = theme.Dead.Render("dead")
			}
			fmt.Fprintf(&b, "\n  node %d  %s  %s", n.NodeID, svc.ServiceName, state)
			if len(svc.Jobs) == 0 {
				b.WriteString("  " + theme.Dim.Render("idle"))
			}
			for _, j := range svc.Jobs {
				if j.Active {
					b.WriteString("  " + theme.Running.Render(j.JobName+" running"))
				} else {
					b.WriteString("  " + theme.Queued.Render(j.JobName+" queued"))
				}
			}
		}
	}
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func describeDigests(digests map[string][]string) string {
	keys := make([]string, 0, len(digests))
	for d := range digests {
		keys = append(keys, d)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, d := range keys {
		parts = append(parts, shortDigest(d)+" on "+strings.Join(digests[d], ","))
	}
	return strings.Join(parts, "; ")
}
