package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/analysis"
	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/report"
	"github.com/user/hsafe/internal/storage"
	"github.com/user/hsafe/internal/util"
)

var analyzeFlags struct {
	plain  bool
	report bool
	noPlay bool
}

// lastAnalysis is the most recent capture analysis, kept for report export.
type lastAnalysis struct {
	Source     string                `json:"source"`
	AnalyzedAt time.Time             `json:"analyzed_at"`
	Report     json.RawMessage       `json:"report"`
	Timeline   []model.TimelineEvent `json:"timeline"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture>",
	Short: "Classify a packet capture against the rule list",
	Long: `Upload a .pcap, .pcapng or .cap file to the analysis service together
with the current rule list, then replay the classified traffic.

The capture is checked locally first. The report is kept for
"hsafe report export" and "hsafe report summary".

Examples:
  hsafe analyze traffic.pcap
  hsafe analyze traffic.pcapng --plain
  hsafe analyze traffic.pcap --report --no-play`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeFlags.plain, "plain", false, "replay without the terminal UI")
	analyzeCmd.Flags().BoolVar(&analyzeFlags.report, "report", false, "print a summary of the timeline")
	analyzeCmd.Flags().BoolVar(&analyzeFlags.noPlay, "no-play", false, "skip the replay")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	info, err := analysis.InspectCapture(args[0])
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Capture"))
	fmt.Printf("%s %s\n", labelStyle.Render("File:    "), valueStyle.Render(filepath.Base(info.Path)))
	fmt.Printf("%s %s (%s)\n", labelStyle.Render("Format:  "), info.Format, info.LinkType)
	fmt.Printf("%s %d packets, %d bytes over %s\n", labelStyle.Render("Records: "),
		info.Packets, info.Bytes, info.Duration())

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("\nAnalyzing with %d rules at %s...\n", s.rules.Len(), newClient().BaseURL())
	resp, err := newClient().AnalyzePcap(cmd.Context(), args[0], s.rules.List())
	if err != nil {
		return fmt.Errorf("failed to analyze capture: %w", err)
	}
	timeline := resp.Simulation.Timeline

	last := lastAnalysis{
		Source:     filepath.Base(args[0]),
		AnalyzedAt: time.Now(),
		Report:     resp.Report,
		Timeline:   timeline,
	}
	if err := s.kv.SaveJSON(storage.KeyLastReport, last); err != nil {
		util.Warn("Failed to save analysis: %v", err)
	}

	overview, assessment, err := resp.Overview()
	if err != nil {
		util.Warn("%v", err)
	}
	fmt.Println()
	fmt.Println(titleStyle.Render("Analysis"))
	fmt.Printf("%s %d\n", labelStyle.Render("Events:  "), len(timeline))
	if overview.TotalPackets > 0 {
		fmt.Printf("%s %d\n", labelStyle.Render("Packets: "), overview.TotalPackets)
	}
	if overview.HighestSeverity != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Severity:"), overview.HighestSeverity)
	}
	if assessment != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Verdict: "), assessment)
	}

	if analyzeFlags.report {
		rs := s.rules.List()
		fmt.Println()
		fmt.Print(report.FormatMarkdown(report.Summarize(timeline, rs).WithAudit(rs)))
	}

	if analyzeFlags.noPlay {
		return nil
	}
	return playTimeline(cmd.Context(), timeline, last.Source, analyzeFlags.plain)
}

// loadLastAnalysis reads the stored analysis of the most recent capture.
func loadLastAnalysis(s *session) (*lastAnalysis, error) {
	var last lastAnalysis
	found, err := s.kv.LoadJSON(storage.KeyLastReport, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to load last analysis: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no analysis yet; run \"hsafe analyze <capture>\" first")
	}
	return &last, nil
}
