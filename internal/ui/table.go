package ui

import (
	"fmt"
	"strconv"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionTable renders the live call details shown under the status line.
func SessionTable(snap call.Snapshot) string {
	rows := [][]string{
		{"Room", orDash(snap.Room)},
		{"Peer", orDash(utils.ShortID(snap.RemoteID, 24))},
		{"Role", snap.Role.String()},
		{"Candidates", fmt.Sprintf("%d sent / %d pending", snap.CandidatesSent, snap.PendingCandidates)},
		{"Restarts", strconv.Itoa(snap.Restarts)},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Call", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// SummaryView renders a finished call as a plain table that survives the
// terminal after the interactive screen exits.
func SummaryView(s *call.Summary) string {
	t := prettytable.NewWriter()
	t.SetTitle("Call Summary")
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(prettytable.Row{"Metric", "Value"})

	status := "Ended"
	if !s.WasConnected {
		status = "Not connected"
	}
	if s.Reason != "" {
		status += " (" + s.Reason + ")"
	}

	t.AppendRows([]prettytable.Row{
		{"Status", status},
		{"Peer", orDash(s.Peer)},
		{"Role", s.Role.String()},
		{"Duration", utils.FormatTimeDuration(s.Duration)},
	})
	t.AppendSeparator()
	t.AppendRows([]prettytable.Row{
		{"Candidates sent", s.CandidatesSent},
		{"Candidates buffered", s.CandidatesBuffered},
		{"Candidates applied", s.CandidatesApplied},
		{"Candidates failed", s.CandidatesFailed},
		{"ICE restarts", s.Restarts},
	})
	return t.Render()
}

func RenderSummary(s *call.Summary) {
	fmt.Println(SummaryView(s))
}

type RoomInfo struct {
	RoomID string
	UserID string
	Server string
}

func (r RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Joined room\n\n%s Room ID:  %s\n%s You:      %s\n%s Relay:    %s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconPeer, r.UserID,
		IconWeb, MutedStyle.Render(r.Server),
	)

	return boxStyle.Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
