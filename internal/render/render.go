// Package render prints timeline documents to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"timeline-ai/backend/internal/client"
	"timeline-ai/backend/internal/document"
)

// Styles holds the lipgloss styles used for timeline output.
type Styles struct {
	Status      lipgloss.Style
	TimeRange   lipgloss.Style
	Description lipgloss.Style
	Rejection   lipgloss.Style
	Muted       lipgloss.Style
}

// NewStyles returns the default styles.
func NewStyles() Styles {
	return Styles{
		Status:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
		TimeRange:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		Description: lipgloss.NewStyle().PaddingLeft(2),
		Rejection: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).
			Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("3")).Padding(0, 1),
		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
	}
}

// Timeline renders a whole document.
func Timeline(doc document.Document) string {
	return timeline(doc, NewStyles())
}

func timeline(doc document.Document, s Styles) string {
	switch v := doc.Variant().(type) {
	case document.Rejection:
		return s.Rejection.Render(v.Text)
	case document.Timeline:
		blocks := make([]string, 0, len(v.Entries))
		for _, e := range v.Entries {
			blocks = append(blocks, entry(e, s))
		}
		return strings.Join(blocks, "\n\n")
	default:
		return s.Muted.Render("No events.")
	}
}

func entry(e document.Entry, s Styles) string {
	return lipgloss.JoinVertical(lipgloss.Left, s.TimeRange.Render(e.TimeRange), s.Description.Render(e.Description))
}

// Printer is a client.Renderer that appends to a terminal as the stream
// progresses. An entry is printed once the next one has started or the
// stream is done, so nothing printed is later revised.
type Printer struct {
	out    io.Writer
	styles Styles

	printed  int
	loading  bool
	finished bool
}

// Interface compliance check.
var _ client.Renderer = (*Printer)(nil)

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, styles: NewStyles()}
}

func (p *Printer) Render(doc document.Document, state client.State) {
	switch state {
	case client.StateLoading:
		if p.finished || p.printed > 0 {
			p.printed, p.finished = 0, false
		}
		if !p.loading {
			p.loading = true
			p.println(p.styles.Status.Render("Generating timeline..."))
		}
	case client.StateStreaming:
		p.printEntries(doc.Events, false)
	case client.StateDone:
		if p.finished {
			return
		}
		p.finished, p.loading = true, false
		if r, ok := doc.Variant().(document.Rejection); ok {
			p.println(p.styles.Rejection.Render(r.Text))
			return
		}
		p.printEntries(doc.Events, true)
		if p.printed == 0 {
			p.println(timeline(doc, p.styles))
		}
	case client.StateIdle:
		if p.loading {
			p.loading = false
			p.println(p.styles.Muted.Render("Cancelled."))
		}
	}
}

func (p *Printer) printEntries(entries []document.Entry, final bool) {
	complete := len(entries)
	if !final {
		// The last entry may still be growing.
		complete--
	}
	for ; p.printed < complete; p.printed++ {
		if p.printed > 0 {
			p.println("")
		}
		p.println(entry(entries[p.printed], p.styles))
	}
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.out, s)
}
