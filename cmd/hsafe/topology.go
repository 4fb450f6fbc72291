package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/report"
	"github.com/user/hsafe/internal/topology"
)

var nodeFlags struct {
	label   string
	ip      string
	subnet  string
	gateway string
	nodeTyp string
	x, y    float64
}

var generateApply bool

var topologyCmd = &cobra.Command{
	Use:     "topology",
	Aliases: []string{"topo"},
	Short:   "Edit the network topology",
	Long: `Edit the device graph traffic is simulated over. A session starts with a
single host "Admin PC" (id 1). Exactly one firewall node enforces the rule list.

Examples:
  hsafe topology add-node firewall
  hsafe topology add-node server --label Web
  hsafe topology link 1 node_1
  hsafe topology set node_2 --ip 10.0.0.20
  hsafe topology generate dmz --apply`,
}

var topologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show nodes and links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		nodes, edges := s.topo.Snapshot()
		printTopology(nodes, edges)
		return nil
	},
}

var topologyAddNodeCmd = &cobra.Command{
	Use:       "add-node <type>",
	Short:     "Add a node (host, server, router, firewall, cloud, switch)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"host", "server", "router", "firewall", "cloud", "switch"},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		t := model.NodeType(strings.ToLower(args[0]))
		n, err := s.topo.AddNode(t, nodeFlags.label, model.Position{X: nodeFlags.x, Y: nodeFlags.y})
		if err != nil {
			return err
		}
		if t == model.NodeFirewall {
			if fw, ok := s.topo.Firewall(); ok && fw.ID != n.ID {
				fmt.Printf("Warning: %s is already the enforcing firewall\n", fw.ID)
			}
		}
		fmt.Printf("Added %s %q as %s\n", n.Type, n.Data.Label, n.ID)
		return nil
	},
}

var topologySetCmd = &cobra.Command{
	Use:   "set <node-id>",
	Short: "Edit node properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch topology.NodePatch
		f := cmd.Flags()
		if f.Changed("label") {
			patch.Label = &nodeFlags.label
		}
		if f.Changed("ip") {
			patch.IP = &nodeFlags.ip
		}
		if f.Changed("subnet") {
			patch.Subnet = &nodeFlags.subnet
		}
		if f.Changed("gateway") {
			patch.Gateway = &nodeFlags.gateway
		}
		if f.Changed("type") {
			t := model.NodeType(strings.ToLower(nodeFlags.nodeTyp))
			patch.Type = &t
		}
		if f.Changed("x") || f.Changed("y") {
			patch.Position = &model.Position{X: nodeFlags.x, Y: nodeFlags.y}
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.topo.UpdateNode(args[0], patch)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s %q\n", n.ID, n.Data.Label)
		return nil
	},
}

var topologyRmNodeCmd = &cobra.Command{
	Use:   "rm-node <node-id>",
	Short: "Remove a node and its links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.topo.RemoveNode(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var topologyLinkCmd = &cobra.Command{
	Use:   "link <source-id> <target-id>",
	Short: "Link two nodes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		l, err := s.topo.Connect(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Linked %s <-> %s (%s)\n", l.Source, l.Target, l.ID)
		return nil
	},
}

var topologyUnlinkCmd = &cobra.Command{
	Use:   "unlink <edge-id>",
	Short: "Remove a link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.topo.Disconnect(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed link %s\n", args[0])
		return nil
	},
}

var topologyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset to the default single-host topology",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.topo.Clear(); err != nil {
			return err
		}
		fmt.Println("Topology cleared")
		return nil
	},
}

var topologyGenerateCmd = &cobra.Command{
	Use:   "generate <template>",
	Short: "Generate a topology with the analysis service",
	Long: `Ask the analysis service for a topology built from a template:
simple, dmz, cloud, star, bus, mesh or ring. The result is printed and,
with --apply, replaces the current topology.`,
	Args: cobra.ExactArgs(1),
	RunE: runTopologyGenerate,
}

var topologyDiagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Print the topology as a Mermaid flowchart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Print(report.TopologyDiagram(s.topo.Snapshot()))
		return nil
	},
}

func init() {
	topologyAddNodeCmd.Flags().StringVar(&nodeFlags.label, "label", "", "display label (defaults from type)")
	topologyAddNodeCmd.Flags().Float64Var(&nodeFlags.x, "x", 0, "canvas x position")
	topologyAddNodeCmd.Flags().Float64Var(&nodeFlags.y, "y", 0, "canvas y position")

	f := topologySetCmd.Flags()
	f.StringVar(&nodeFlags.label, "label", "", "display label")
	f.StringVar(&nodeFlags.ip, "ip", "", "IP address (empty clears)")
	f.StringVar(&nodeFlags.subnet, "subnet", "", "subnet")
	f.StringVar(&nodeFlags.gateway, "gateway", "", "gateway address")
	f.StringVar(&nodeFlags.nodeTyp, "type", "", "node type")
	f.Float64Var(&nodeFlags.x, "x", 0, "canvas x position")
	f.Float64Var(&nodeFlags.y, "y", 0, "canvas y position")

	topologyGenerateCmd.Flags().BoolVar(&generateApply, "apply", false, "replace the current topology")

	topologyCmd.AddCommand(topologyShowCmd, topologyAddNodeCmd, topologySetCmd, topologyRmNodeCmd,
		topologyLinkCmd, topologyUnlinkCmd, topologyClearCmd, topologyGenerateCmd, topologyDiagramCmd)
}

func runTopologyGenerate(cmd *cobra.Command, args []string) error {
	template := strings.ToLower(args[0])
	if !topology.ValidTemplate(template) {
		return fmt.Errorf("unknown template %q (use %s)", template, strings.Join(topology.Templates, ", "))
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	gen, err := newClient().GenerateTopology(ctx, template, nil)
	if err != nil {
		return fmt.Errorf("failed to generate topology: %w", err)
	}
	nodes, edges := topology.FromGenerated(*gen)
	printTopology(nodes, edges)

	if !generateApply {
		fmt.Println("\nRun again with --apply to use this topology")
		return nil
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.topo.Replace(nodes, edges); err != nil {
		return fmt.Errorf("failed to apply topology: %w", err)
	}
	fmt.Printf("\nApplied %d nodes and %d links\n", len(nodes), len(edges))
	return nil
}

func printTopology(nodes []model.Node, edges []model.Link) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	fwStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	fmt.Println(titleStyle.Render(fmt.Sprintf("Nodes (%d)", len(nodes))))
	for _, n := range nodes {
		ip := topology.NodeIP(n)
		if n.Data.IP == "" {
			ip += " (auto)"
		}
		line := fmt.Sprintf("  %-12s %-9s %-20s %s", n.ID, n.Type, truncate(n.Data.Label, 20), ip)
		if n.Type == model.NodeFirewall {
			line = fwStyle.Render(line)
		}
		fmt.Println(line)
	}

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Links (%d)", len(edges))))
	for _, e := range edges {
		fmt.Printf("  %-28s %s <-> %s\n", e.ID, e.Source, e.Target)
	}
}
