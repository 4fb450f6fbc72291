package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/playback"
)

// tableRows caps the events shown in the trailing-window table.
const tableRows = 12

// Dashboard renders the playback state.
type Dashboard struct {
	title    string
	bar      progress.Model
	snapshot playback.Snapshot
	window   []model.TimelineEvent
	width    int
	height   int
}

// NewDashboard creates a dashboard.
func NewDashboard(title string, bar progress.Model) *Dashboard {
	return &Dashboard{
		title: title,
		bar:   bar,
		width: 80,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
	d.bar.Width = d.sectionWidth() - 6
}

// Update replaces the state being shown.
func (d *Dashboard) Update(snap playback.Snapshot, window []model.TimelineEvent) {
	d.snapshot = snap
	d.window = window
}

// View renders the dashboard. spin is shown while playing.
func (d *Dashboard) View(spin string) string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("H-Safe Playback: " + d.title))
	sb.WriteString("\n\n")

	sb.WriteString(d.renderProgress(spin))
	sb.WriteString("\n")
	sb.WriteString(d.renderCounters())
	sb.WriteString("\n")
	sb.WriteString(d.renderCurrent())
	sb.WriteString("\n")
	sb.WriteString(d.renderWindow())
	sb.WriteString("\n")

	sb.WriteString(HelpStyle.Render("space pause/resume • s stop • r restart • q quit"))
	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	w := d.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (d *Dashboard) percent() float64 {
	if d.snapshot.Total == 0 {
		if d.snapshot.State == playback.StateFinished {
			return 1
		}
		return 0
	}
	return float64(d.snapshot.Index) / float64(d.snapshot.Total)
}

func (d *Dashboard) renderProgress(spin string) string {
	state := string(d.snapshot.State)
	if d.snapshot.State == playback.StatePlaying {
		state = spin + " " + state
	}
	content := fmt.Sprintf("%s\n%s %s",
		d.bar.ViewAs(d.percent()),
		ValueStyle.Render(fmt.Sprintf("%d/%d", d.snapshot.Index, d.snapshot.Total)),
		DimStyle.Render(state),
	)
	return SectionStyle.Width(d.sectionWidth()).Render(content)
}

func (d *Dashboard) renderCounters() string {
	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s",
		LabelStyle.Render("Total:"),
		ValueStyle.Render(fmt.Sprintf("%d", d.snapshot.Index)),
		LabelStyle.Render("Denied:"),
		ErrorStyle.Render(fmt.Sprintf("%d", d.snapshot.Denied)),
		LabelStyle.Render("Alerted:"),
		WarningStyle.Render(fmt.Sprintf("%d", d.snapshot.Alerted)),
	)
	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Counters") + "\n" + content)
}

func (d *Dashboard) renderCurrent() string {
	var content string
	if ev := d.snapshot.Current; ev != nil {
		content = FormatEvent(*ev, RenderAction(ev.Action))
	} else {
		content = DimStyle.Render("No event")
	}
	return SectionStyle.Width(d.sectionWidth()).Render(
		SectionTitleStyle.Render("Last event") + "\n" + content)
}

func (d *Dashboard) renderWindow() string {
	title := SectionTitleStyle.Render("Recent events")
	if len(d.window) == 0 {
		return SectionStyle.Width(d.sectionWidth()).Render(title + "\n" + DimStyle.Render("Nothing played yet"))
	}

	rows := []string{TableHeaderStyle.Render(fmt.Sprintf("%-5s %-5s %-21s %-21s %s", "ACT", "PROTO", "SOURCE", "DESTINATION", "REASON"))}

	n := len(d.window)
	if n > tableRows {
		n = tableRows
	}
	for _, ev := range d.window[:n] {
		rows = append(rows, FormatEvent(ev, RenderAction(ev.Action)))
	}
	if len(d.window) > n {
		rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(d.window)-n)))
	}

	return SectionStyle.Width(d.sectionWidth()).Render(title + "\n" + strings.Join(rows, "\n"))
}

// FormatEvent renders one event on a line using action as the first column.
func FormatEvent(ev model.TimelineEvent, action string) string {
	proto := string(ev.Protocol)
	if ev.Protocol.IsWildcard() {
		proto = model.Wildcard
	}
	reason := ev.Reason
	if reason == "" {
		reason = "-"
	}
	return fmt.Sprintf("%s %-5s %-21s %-21s %s",
		action, proto, ev.SrcIP, fmt.Sprintf("%s:%d", ev.DstIP, ev.DstPort), reason)
}
