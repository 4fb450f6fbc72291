package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/analysis"
	"github.com/user/hsafe/internal/report"
	"github.com/user/hsafe/internal/util"
)

var (
	reportFormat string
	reportOutput string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with the last analysis report",
	Long: `Export or summarise the report of the most recent "hsafe analyze" run.

Examples:
  hsafe report summary
  hsafe report export --format pdf
  hsafe report export --format csv --output ./reports`,
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the report as pdf, csv or json via the analysis service",
	Args:  cobra.NoArgs,
	RunE:  runReportExport,
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a local summary of the last timeline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		last, err := loadLastAnalysis(s)
		if err != nil {
			return err
		}
		rs := s.rules.List()
		sum := report.Summarize(last.Timeline, rs).WithAudit(rs)
		fmt.Printf("Source: %s (analyzed %s)\n\n", last.Source, last.AnalyzedAt.Format("2006-01-02 15:04:05"))
		fmt.Print(report.FormatMarkdown(sum))
		return nil
	},
}

func init() {
	reportExportCmd.Flags().StringVarP(&reportFormat, "format", "f", "pdf",
		"export format ("+strings.Join(analysis.ExportFormats, ", ")+")")
	reportExportCmd.Flags().StringVarP(&reportOutput, "output", "o", ".", "output directory")

	reportCmd.AddCommand(reportExportCmd, reportSummaryCmd)
}

func runReportExport(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	last, err := loadLastAnalysis(s)
	if err != nil {
		return err
	}
	if len(last.Report) == 0 {
		return fmt.Errorf("the last analysis has no report to export")
	}

	data, contentType, err := newClient().ExportReport(cmd.Context(), last.Report, reportFormat)
	if err != nil {
		return fmt.Errorf("failed to export report: %w", err)
	}

	if err := util.EnsureDir(reportOutput); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(reportOutput, analysis.ExportFilename(strings.ToLower(reportFormat), time.Now()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.WithField("content_type", contentType).Debugf("Exported %d bytes", len(data))
	fmt.Printf("Report written to %s\n", path)
	return nil
}
