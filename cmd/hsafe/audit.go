package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the rule order for shadowed and overlapping rules",
	Long: `Compare every pair of enabled rules. A later rule whose traffic overlaps
an earlier ALLOW or DENY rule is shadowed; an ALLOW before an overlapping
DENY is flagged as a bypass risk; overlapping ALERT rules are noted.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	list := s.rules.List()
	names := make(map[string]string, len(list))
	for _, r := range list {
		names[r.ID] = r.Name
	}
	name := func(id string) string {
		return fmt.Sprintf("%q (%s)", names[id], shortID(id))
	}

	f := rules.Audit(list)

	fmt.Println(titleStyle.Render("Rule order audit"))
	fmt.Printf("%d rules, %d enabled\n\n", len(list), countEnabled(list))

	for _, sh := range f.Shadowed {
		fmt.Println(warnStyle.Render(fmt.Sprintf("SHADOWED  %s by %s: %s", name(sh.RuleID), name(sh.ShadowedBy), sh.Reason)))
	}
	for _, ad := range f.AllowBeforeDeny {
		fmt.Println(warnStyle.Render(fmt.Sprintf("BYPASS    %s before %s: %s", name(ad.AllowRule), name(ad.DenyRule), ad.Risk)))
	}
	for _, ov := range f.OverlappingAlerts {
		fmt.Println(warnStyle.Render(fmt.Sprintf("OVERLAP   %s and %s: %s", name(ov.Rule1), name(ov.Rule2), ov.Note)))
	}

	if f.Clean() {
		fmt.Println(okStyle.Render(f.Recommendations[0]))
		return nil
	}
	fmt.Println()
	fmt.Println(titleStyle.Render("Recommendations"))
	for _, rec := range f.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
	return nil
}

func countEnabled(list []model.Rule) int {
	n := 0
	for _, r := range list {
		if r.Enabled {
			n++
		}
	}
	return n
}
