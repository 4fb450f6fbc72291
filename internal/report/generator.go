// Package report summarises classified timelines and renders them as
// markdown with Mermaid diagrams.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
)

// topDestinationLimit caps the destinations listed in a summary.
const topDestinationLimit = 5

// Destination counts events sent to one address and port.
type Destination struct {
	DstIP   string `json:"dst_ip"`
	DstPort int    `json:"dst_port"`
	Count   int    `json:"count"`
	Denied  int    `json:"denied"`
}

// Summary holds aggregate figures for a timeline.
type Summary struct {
	GeneratedAt     time.Time            `json:"generated_at"`
	Total           int                  `json:"total"`
	ByAction        map[model.Action]int `json:"by_action"`
	ByProtocol      map[string]int       `json:"by_protocol"`
	ByReason        map[string]int       `json:"by_reason"`
	TopDestinations []Destination        `json:"top_destinations"`
	HighestSeverity model.Severity       `json:"highest_severity,omitempty"`
	Findings        *rules.Findings      `json:"findings,omitempty"`
}

// Summarize counts the events of timeline. Reasons are matched against the
// names of rs to find the highest severity that fired.
func Summarize(timeline []model.TimelineEvent, rs []model.Rule) *Summary {
	s := &Summary{
		GeneratedAt: time.Now(),
		Total:       len(timeline),
		ByAction:    make(map[model.Action]int),
		ByProtocol:  make(map[string]int),
		ByReason:    make(map[string]int),
	}

	severityOf := make(map[string]model.Severity, len(rs))
	for _, r := range rs {
		if _, ok := severityOf[r.Name]; !ok {
			severityOf[r.Name] = r.Severity
		}
	}

	dests := make(map[string]*Destination)
	for _, ev := range timeline {
		s.ByAction[ev.Action]++
		s.ByProtocol[protocolLabel(ev.Protocol)]++

		reason := ev.Reason
		if reason == "" {
			reason = rules.ReasonDefaultAllow
		}
		s.ByReason[reason]++

		if ev.Action != model.ActionAllow {
			if sev, ok := severityOf[reason]; ok && sev.Rank() > s.HighestSeverity.Rank() {
				s.HighestSeverity = sev
			}
		}

		key := fmt.Sprintf("%s:%d", ev.DstIP, ev.DstPort)
		d, ok := dests[key]
		if !ok {
			d = &Destination{DstIP: ev.DstIP, DstPort: ev.DstPort}
			dests[key] = d
		}
		d.Count++
		if ev.Action == model.ActionDeny {
			d.Denied++
		}
	}

	s.TopDestinations = topDestinations(dests, topDestinationLimit)
	return s
}

// WithAudit attaches rule-order findings to the summary.
func (s *Summary) WithAudit(rs []model.Rule) *Summary {
	f := rules.Audit(rs)
	s.Findings = &f
	return s
}

// FormatMarkdown renders the summary as a markdown document.
func FormatMarkdown(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("# H-Safe Traffic Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.Format(time.RFC1123)))

	sb.WriteString("## Overview\n\n")
	sb.WriteString(fmt.Sprintf("- Events: %d\n", s.Total))
	sb.WriteString(fmt.Sprintf("- Allowed: %d\n", s.ByAction[model.ActionAllow]))
	sb.WriteString(fmt.Sprintf("- Denied: %d\n", s.ByAction[model.ActionDeny]))
	sb.WriteString(fmt.Sprintf("- Alerted: %d\n", s.ByAction[model.ActionAlert]))
	if s.HighestSeverity != "" {
		sb.WriteString(fmt.Sprintf("- Highest severity: %s\n", s.HighestSeverity))
	}
	sb.WriteString("\n")

	if len(s.ByProtocol) > 0 {
		sb.WriteString("## Protocols\n\n")
		sb.WriteString("| Protocol | Events |\n|---|---|\n")
		for _, k := range sortedKeys(s.ByProtocol) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", k, s.ByProtocol[k]))
		}
		sb.WriteString("\n")
	}

	if len(s.ByReason) > 0 {
		sb.WriteString("## Matched rules\n\n")
		sb.WriteString("| Rule | Events |\n|---|---|\n")
		for _, k := range sortedKeys(s.ByReason) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", k, s.ByReason[k]))
		}
		sb.WriteString("\n")
	}

	if len(s.TopDestinations) > 0 {
		sb.WriteString("## Top destinations\n\n")
		sb.WriteString("| Destination | Events | Denied |\n|---|---|---|\n")
		for _, d := range s.TopDestinations {
			sb.WriteString(fmt.Sprintf("| %s:%d | %d | %d |\n", d.DstIP, d.DstPort, d.Count, d.Denied))
		}
		sb.WriteString("\n")
	}

	if s.Findings != nil {
		sb.WriteString(formatFindings(s.Findings))
	}

	return sb.String()
}

func formatFindings(f *rules.Findings) string {
	var sb strings.Builder
	sb.WriteString("## Rule order\n\n")
	for _, sh := range f.Shadowed {
		sb.WriteString(fmt.Sprintf("- Shadowed: %s by %s (%s)\n", sh.RuleID, sh.ShadowedBy, sh.Reason))
	}
	for _, ad := range f.AllowBeforeDeny {
		sb.WriteString(fmt.Sprintf("- Allow before deny: %s before %s (%s)\n", ad.AllowRule, ad.DenyRule, ad.Risk))
	}
	for _, ov := range f.OverlappingAlerts {
		sb.WriteString(fmt.Sprintf("- Overlapping alerts: %s and %s\n", ov.Rule1, ov.Rule2))
	}
	for _, rec := range f.Recommendations {
		sb.WriteString(fmt.Sprintf("- %s\n", rec))
	}
	sb.WriteString("\n")
	return sb.String()
}

func topDestinations(dests map[string]*Destination, limit int) []Destination {
	out := make([]Destination, 0, len(dests))
	for _, d := range dests {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].DstIP != out[j].DstIP {
			return out[i].DstIP < out[j].DstIP
		}
		return out[i].DstPort < out[j].DstPort
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func protocolLabel(p model.Protocol) string {
	if p.IsWildcard() {
		return model.Wildcard
	}
	return string(p)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
