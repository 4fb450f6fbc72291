package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
)

var ruleFlags struct {
	name        string
	description string
	severity    string
	protocol    string
	action      string
	srcIP       string
	dstIP       string
	dstPort     string
	position    int
	disabled    bool
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the firewall rule list",
	Long: `Manage the ordered firewall rule list. The first enabled rule that
matches a packet decides its action; unmatched traffic is allowed.

Examples:
  hsafe rules list
  hsafe rules add --name "Block SSH" --action deny --severity high --protocol tcp --dst-port 22
  hsafe rules move <id> 0
  hsafe rules toggle <id>
  hsafe rules export rules.json
  hsafe rules import rules.json`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Args:  cobra.NoArgs,
	RunE:  runRulesAdd,
}

var rulesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a rule; unset flags keep their current value",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesEdit,
}

var rulesRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := resolveRuleID(s, args[0])
		if err != nil {
			return err
		}
		if err := s.rules.Delete(id); err != nil {
			return err
		}
		fmt.Printf("Deleted rule %s\n", id)
		return nil
	},
}

var rulesMoveCmd = &cobra.Command{
	Use:   "move <id> <position>",
	Short: "Move a rule to a zero-based position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[1], err)
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := resolveRuleID(s, args[0])
		if err != nil {
			return err
		}
		if err := s.rules.MoveByID(id, pos); err != nil {
			return err
		}
		printRules(s.rules.List())
		return nil
	},
}

var rulesToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := resolveRuleID(s, args[0])
		if err != nil {
			return err
		}
		r, err := s.rules.Toggle(id)
		if err != nil {
			return err
		}
		state := "disabled"
		if r.Enabled {
			state = "enabled"
		}
		fmt.Printf("Rule %q %s\n", r.Name, state)
		return nil
	},
}

var rulesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the rule list as JSON (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		list := s.rules.List()
		if err := writeRulesFile(path, list); err != nil {
			return err
		}
		if path != "" {
			fmt.Printf("Exported %d rules to %s\n", len(list), path)
		}
		return nil
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the rule list with a JSON export",
	Long: `Replace the whole rule list with the rules in a file written by
"hsafe rules export". Every rule is validated first; if any is invalid
the current list is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := readRulesFile(args[0])
		if err != nil {
			return err
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.rules.Replace(list); err != nil {
			return fmt.Errorf("failed to import rules: %w", err)
		}
		fmt.Printf("Imported %d rules from %s\n", s.rules.Len(), args[0])
		printRules(s.rules.List())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{rulesAddCmd, rulesEditCmd} {
		f := c.Flags()
		f.StringVar(&ruleFlags.name, "name", "", "rule name")
		f.StringVar(&ruleFlags.description, "description", "", "free-text description")
		f.StringVar(&ruleFlags.severity, "severity", "MEDIUM", "LOW, MEDIUM, HIGH or CRITICAL")
		f.StringVar(&ruleFlags.protocol, "protocol", "ANY", "TCP, UDP, ICMP or ANY")
		f.StringVar(&ruleFlags.action, "action", "ALERT", "ALLOW, DENY or ALERT")
		f.StringVar(&ruleFlags.srcIP, "src-ip", "", "source address (empty or ANY matches all)")
		f.StringVar(&ruleFlags.dstIP, "dst-ip", "", "destination address (empty or ANY matches all)")
		f.StringVar(&ruleFlags.dstPort, "dst-port", "", "destination port (empty matches all)")
		f.BoolVar(&ruleFlags.disabled, "disabled", false, "create or leave the rule disabled")
	}
	rulesAddCmd.Flags().IntVar(&ruleFlags.position, "position", -1, "insert at this position instead of appending")
	rulesAddCmd.MarkFlagRequired("name")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesEditCmd, rulesRmCmd, rulesMoveCmd, rulesToggleCmd,
		rulesExportCmd, rulesImportCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	printRules(s.rules.List())
	return nil
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	in := rules.RuleInput{
		Name:        ruleFlags.name,
		Description: ruleFlags.description,
		Severity:    ruleFlags.severity,
		Protocol:    ruleFlags.protocol,
		Action:      ruleFlags.action,
		SrcIP:       ruleFlags.srcIP,
		DstIP:       ruleFlags.dstIP,
		DstPort:     ruleFlags.dstPort,
	}
	enabled := !ruleFlags.disabled
	in.Enabled = &enabled
	if ruleFlags.position >= 0 {
		in.Position = &ruleFlags.position
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.rules.Create(in)
	if err != nil {
		return err
	}
	fmt.Printf("Created rule %s at position %d\n", r.ID, r.Position)
	return nil
}

func runRulesEdit(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveRuleID(s, args[0])
	if err != nil {
		return err
	}
	current, err := s.rules.Get(id)
	if err != nil {
		return err
	}

	in := rules.InputFromRule(current)
	f := cmd.Flags()
	set := func(flag string, dst *string, v string) {
		if f.Changed(flag) {
			*dst = v
		}
	}
	set("name", &in.Name, ruleFlags.name)
	set("description", &in.Description, ruleFlags.description)
	set("severity", &in.Severity, ruleFlags.severity)
	set("protocol", &in.Protocol, ruleFlags.protocol)
	set("action", &in.Action, ruleFlags.action)
	set("src-ip", &in.SrcIP, ruleFlags.srcIP)
	set("dst-ip", &in.DstIP, ruleFlags.dstIP)
	set("dst-port", &in.DstPort, ruleFlags.dstPort)
	in.Enabled = nil
	if f.Changed("disabled") {
		enabled := !ruleFlags.disabled
		in.Enabled = &enabled
	}

	r, err := s.rules.Update(id, in)
	if err != nil {
		return err
	}
	fmt.Printf("Updated rule %q\n", r.Name)
	return nil
}

func printRules(list []model.Rule) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	if len(list) == 0 {
		fmt.Println(dimStyle.Render("No rules defined; all traffic is allowed"))
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-3s %-3s %-8s %-20s %-5s %-5s %-15s %-15s %-5s %s",
		"#", "ON", "ID", "NAME", "ACT", "PROTO", "SRC", "DST", "PORT", "SEVERITY")))
	for _, r := range list {
		on := "yes"
		if !r.Enabled {
			on = "no"
		}
		line := fmt.Sprintf("%-3d %-3s %-8s %-20s %-5s %-5s %-15s %-15s %-5s %s",
			r.Position, on, shortID(r.ID), truncate(r.Name, 20), r.Action, protoLabel(r.Protocol),
			orAny(r.Conditions.SrcIP), orAny(r.Conditions.DstIP), portLabel(r.Conditions.DstPort), r.Severity)
		if !r.Enabled {
			line = dimStyle.Render(line)
		}
		fmt.Println(line)
	}
}

// resolveRuleID expands a unique id prefix, as printed by rules list.
func resolveRuleID(s *session, arg string) (string, error) {
	list := s.rules.List()
	for _, r := range list {
		if r.ID == arg {
			return arg, nil
		}
	}

	var match string
	for _, r := range list {
		if strings.HasPrefix(r.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("rule id prefix %q is ambiguous", arg)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", rules.ErrRuleNotFound, arg)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func protoLabel(p model.Protocol) string {
	if p.IsWildcard() {
		return model.Wildcard
	}
	return string(p)
}

func orAny(s string) string {
	if s == "" {
		return model.Wildcard
	}
	return s
}

func portLabel(p *int) string {
	if p == nil {
		return model.Wildcard
	}
	return strconv.Itoa(*p)
}

// writeRulesFile writes list as indented JSON to path, or to stdout when
// path is empty.
func writeRulesFile(path string, list []model.Rule) error {
	if list == nil {
		list = []model.Rule{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readRulesFile(path string) ([]model.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var list []model.Rule
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return list, nil
}
