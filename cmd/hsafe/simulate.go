package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/report"
	"github.com/user/hsafe/internal/simulator"
	"github.com/user/hsafe/internal/tui"
)

var simFlags struct {
	from     string
	to       string
	protocol string
	port     int
	remote   bool
	play     bool
	plain    bool
	diagram  bool
}

var simulateCmd = &cobra.Command{
	Use:     "simulate",
	Aliases: []string{"sim"},
	Short:   "Send simulated traffic across the topology",
	Long: `Find the shortest path from one node to another and walk it hop by hop.
The firewall on the path enforces the rule list; a DENY drops the traffic
there, an ALERT is recorded and the traffic continues.

By default the simulation runs locally. With --remote it is sent to the
analysis service instead.

Examples:
  hsafe simulate --from 1 --to node_2 --port 22
  hsafe simulate --from 1 --to node_2 --protocol udp --port 53 --diagram
  hsafe simulate --from 1 --to node_2 --remote --play`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simFlags.from, "from", "", "attacker node id")
	f.StringVar(&simFlags.to, "to", "", "target node id")
	f.StringVar(&simFlags.protocol, "protocol", "", "TCP, UDP or ICMP (default from config)")
	f.IntVar(&simFlags.port, "port", -1, "destination port (default from config)")
	f.BoolVar(&simFlags.remote, "remote", false, "simulate with the analysis service")
	f.BoolVar(&simFlags.play, "play", false, "replay the result as a timeline")
	f.BoolVar(&simFlags.plain, "plain", false, "replay without the terminal UI")
	f.BoolVar(&simFlags.diagram, "diagram", false, "print the trace as a Mermaid flowchart")
	simulateCmd.MarkFlagRequired("from")
	simulateCmd.MarkFlagRequired("to")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	proto := model.Protocol(strings.ToUpper(simFlags.protocol))
	if proto.IsWildcard() {
		proto = model.Protocol(cfg.DefaultProtocol)
	}
	if !proto.Valid() {
		return fmt.Errorf("invalid protocol %q (use TCP, UDP or ICMP)", simFlags.protocol)
	}
	port := simFlags.port
	if port < 0 {
		port = cfg.DefaultPort
	}
	if port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var res simulator.Result
	if simFlags.remote {
		nodes, edges := s.topo.Snapshot()
		req, aliases := simulator.Request(nodes, edges, simFlags.from, simFlags.to, proto, port, s.rules.Enabled())
		remote, err := newClient().SimulateTopology(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to simulate: %w", err)
		}
		res = *remote
		simulator.Restore(&res, aliases)
	} else {
		res = simulator.Run(s.topo, simFlags.from, simFlags.to, proto, port, s.rules.Enabled())
	}

	printResult(res, s.topo.Nodes())

	if simFlags.diagram {
		fmt.Println()
		fmt.Print(report.TraceDiagram(&res, s.topo.Nodes()))
	}

	if simFlags.play {
		title := fmt.Sprintf("%s -> %s %s/%d", simFlags.from, simFlags.to, proto, port)
		return playTimeline(cmd.Context(), res.Timeline(), title, simFlags.plain)
	}
	return nil
}

func printResult(res simulator.Result, nodes []model.Node) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n.ID] = n.Data.Label
	}

	outcome := tui.SuccessStyle
	switch res.Outcome {
	case model.OutcomeBlocked:
		outcome = tui.ErrorStyle
	case model.OutcomeFailed:
		outcome = tui.WarningStyle
	}

	fmt.Println(titleStyle.Render("Simulation"))
	fmt.Printf("%s %s %s -> %s:%d\n", labelStyle.Render("Packet: "),
		res.Packet.Protocol, res.Packet.SrcIP, res.Packet.DstIP, res.Packet.DstPort)
	fmt.Printf("%s %s\n", labelStyle.Render("Outcome:"), outcome.Render(string(res.Outcome)))
	if res.Message != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Message:"), res.Message)
	}
	if len(res.Trace) == 0 {
		return
	}

	fmt.Println()
	for _, hop := range res.Trace {
		label := labels[hop.NodeID]
		if label == "" {
			label = hop.NodeID
		}
		action := tui.SuccessStyle.Render(string(hop.Action))
		if hop.Action == model.HopDrop {
			action = tui.ErrorStyle.Render(string(hop.Action))
		}
		fmt.Printf("  %2d. %-20s %s  %s\n", hop.Hop, truncate(label, 20), action, hop.Details)
		for _, d := range hop.Detections {
			fmt.Printf("      %s %s (%s)\n", tui.RenderAction(d.Action), d.Name, d.Severity)
		}
	}
}
