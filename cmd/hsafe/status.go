package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and session status",
	Long:  "Show whether the API server is running, and the size of the saved rule list and topology.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("86"))

	runningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	stoppedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("H-Safe Status"))
	fmt.Println()

	fmt.Print(labelStyle.Render("Server: "))
	if running {
		fmt.Println(runningStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(stoppedStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil && running {
		fmt.Print(labelStyle.Render("API: "))
		fmt.Println(valueStyle.Render(fmt.Sprintf("http://localhost:%d/api", sf.Port)))

		fmt.Print(labelStyle.Render("Started: "))
		fmt.Println(valueStyle.Render(sf.StartTime))

		fmt.Print(labelStyle.Render("Uptime: "))
		fmt.Println(valueStyle.Render(sf.Uptime(time.Now()).String()))
	}

	fmt.Print(labelStyle.Render("Service: "))
	fmt.Println(valueStyle.Render(cfg.ServiceURL))

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println()
	fmt.Println(titleStyle.Render("Session"))

	nodes, edges := s.topo.Snapshot()
	fmt.Printf("  %s %s\n",
		labelStyle.Render("Rules:"),
		valueStyle.Render(fmt.Sprintf("%d (%d enabled)", s.rules.Len(), len(s.rules.Enabled()))))
	fmt.Printf("  %s %s\n",
		labelStyle.Render("Nodes:"),
		valueStyle.Render(fmt.Sprintf("%d", len(nodes))))
	fmt.Printf("  %s %s\n",
		labelStyle.Render("Links:"),
		valueStyle.Render(fmt.Sprintf("%d", len(edges))))

	fw := "none"
	if n, ok := s.topo.Firewall(); ok {
		fw = fmt.Sprintf("%s (%s)", n.Data.Label, n.ID)
	}
	fmt.Printf("  %s %s\n", labelStyle.Render("Firewall:"), valueStyle.Render(fw))

	keys, err := s.kv.Keys()
	if err != nil {
		return fmt.Errorf("failed to list stored keys: %w", err)
	}
	fmt.Printf("  %s %s\n", labelStyle.Render("Stored:"), valueStyle.Render(storedLabel(keys)))

	if last, err := loadLastAnalysis(s); err == nil {
		fmt.Println()
		fmt.Println(titleStyle.Render("Last analysis"))
		fmt.Printf("  %s %s\n", labelStyle.Render("Source:"), valueStyle.Render(last.Source))
		fmt.Printf("  %s %s\n", labelStyle.Render("Events:"), valueStyle.Render(fmt.Sprintf("%d", len(last.Timeline))))
		fmt.Printf("  %s %s\n", labelStyle.Render("When:"),
			valueStyle.Render(last.AnalyzedAt.Format("2006-01-02 15:04:05")))
	}

	return nil
}

func storedLabel(keys []string) string {
	if len(keys) == 0 {
		return "nothing saved yet"
	}
	return strings.Join(keys, ", ")
}
