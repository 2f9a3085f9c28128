// Package report renders the pairing table for the status command.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Haraven/autobiographical-exercise/internal/model"
	"github.com/Haraven/autobiographical-exercise/internal/theme"
)

// Summary aggregates a pairing table against the roster.
type Summary struct {
	Total            int
	AwaitingFeedback int
	Closed           int

	// AvailableReviewers are roster entries holding no active pairing, in
	// roster order: the order new autobiographies would be assigned.
	AvailableReviewers []string

	// NotSubmitted are roster entries with no forwarded autobiography.
	NotSubmitted []string
}

// Summarize computes the summary of pairings against roster.
func Summarize(pairings []model.Pairing, roster []string) Summary {
	s := Summary{Total: len(pairings)}

	busy := make(map[string]bool)
	submitted := make(map[string]bool)
	for _, p := range pairings {
		switch p.Status() {
		case model.StatusAwaitingFeedback:
			s.AwaitingFeedback++
			busy[model.NormalizeAddress(p.Reviewer)] = true
		case model.StatusClosed:
			s.Closed++
		}
		if p.AutobiographySent {
			submitted[model.NormalizeAddress(p.Author)] = true
		}
	}

	for _, addr := range roster {
		addr = model.NormalizeAddress(addr)
		if !busy[addr] {
			s.AvailableReviewers = append(s.AvailableReviewers, addr)
		}
		if !submitted[addr] {
			s.NotSubmitted = append(s.NotSubmitted, addr)
		}
	}
	return s
}

// Render returns the pairing table followed by the summary.
func Render(pairings []model.Pairing, roster []string) string {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render("Autobiography pairings"))
	b.WriteString("\n")

	if len(pairings) == 0 {
		b.WriteString(theme.HelpStyle.Render("No pairings recorded yet."))
		b.WriteString("\n")
	} else {
		b.WriteString(pairingTable(pairings).String())
		b.WriteString("\n")
	}

	s := Summarize(pairings, roster)
	fmt.Fprintf(&b, "%d pairings: %d awaiting feedback, %d closed\n",
		s.Total, s.AwaitingFeedback, s.Closed)
	fmt.Fprintf(&b, "Available reviewers (%d): %s\n",
		len(s.AvailableReviewers), listOrNone(s.AvailableReviewers))
	fmt.Fprintf(&b, "Not yet submitted (%d): %s\n",
		len(s.NotSubmitted), listOrNone(s.NotSubmitted))

	return b.String()
}

func pairingTable(pairings []model.Pairing) *table.Table {
	statuses := make([]model.PairingStatus, len(pairings))
	rows := make([][]string, len(pairings))
	for i, p := range pairings {
		statuses[i] = p.Status()
		created := ""
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows[i] = []string{
			strconv.Itoa(p.ID),
			p.Author,
			p.Reviewer,
			statuses[i].String(),
			created,
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("#", "Author", "Reviewer", "Status", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeaderStyle
			}
			if col == 3 && row >= 0 && row < len(statuses) {
				return theme.StatusStyle(statuses[row])
			}
			return theme.CellStyle
		})
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
