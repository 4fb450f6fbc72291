package report

import (
	"fmt"
	"strings"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/simulator"
)

// TopologyDiagram creates a Mermaid flowchart of the topology graph.
func TopologyDiagram(nodes []model.Node, edges []model.Link) string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")

	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("    %s%s\n", nodeID(n.ID), shape(n)))
	}
	if len(edges) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("    %s --- %s\n", nodeID(e.Source), nodeID(e.Target)))
	}

	sb.WriteString("\n")
	for _, n := range nodes {
		if n.Type == model.NodeFirewall {
			sb.WriteString(fmt.Sprintf("    class %s firewall\n", nodeID(n.ID)))
		}
	}
	sb.WriteString("    classDef firewall fill:#FFB6C1,stroke:#FF0000\n")
	sb.WriteString("```\n")

	return sb.String()
}

// TraceDiagram creates a Mermaid flowchart of the hops visited by a
// simulation. A dropped hop is styled and ends the chart.
func TraceDiagram(res *simulator.Result, nodes []model.Node) string {
	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n.ID] = n.Data.Label
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("flowchart LR\n")

	if len(res.Trace) == 0 {
		sb.WriteString(fmt.Sprintf("    Fail[%s]:::dropped\n", escape(res.Message)))
	}

	prev := ""
	for _, h := range res.Trace {
		id := fmt.Sprintf("H%d", h.Hop)
		label := labels[h.NodeID]
		if label == "" {
			label = h.NodeID
		}
		text := fmt.Sprintf("%d. %s", h.Hop, escape(label))
		if len(h.Detections) > 0 {
			names := make([]string, 0, len(h.Detections))
			for _, d := range h.Detections {
				names = append(names, escape(d.Name))
			}
			text += "\\n" + strings.Join(names, ", ")
		}

		if h.Action == model.HopDrop {
			sb.WriteString(fmt.Sprintf("    %s[%s]:::dropped\n", id, text))
		} else if len(h.Detections) > 0 {
			sb.WriteString(fmt.Sprintf("    %s[%s]:::alerted\n", id, text))
		} else {
			sb.WriteString(fmt.Sprintf("    %s[%s]\n", id, text))
		}

		if prev != "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, id))
		}
		prev = id
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef dropped fill:#FFB6C1,stroke:#FF0000\n")
	sb.WriteString("    classDef alerted fill:#FFE4B5,stroke:#FF8C00\n")
	sb.WriteString("```\n")

	return sb.String()
}

func shape(n model.Node) string {
	label := escape(n.Data.Label)
	if label == "" {
		label = n.ID
	}
	if n.Data.IP != "" {
		label += "\\n" + n.Data.IP
	}
	switch n.Type {
	case model.NodeCloud:
		return fmt.Sprintf("((%s))", label)
	case model.NodeFirewall:
		return fmt.Sprintf("{{%s}}", label)
	case model.NodeRouter, model.NodeSwitch:
		return fmt.Sprintf("([%s])", label)
	default:
		return fmt.Sprintf("[%s]", label)
	}
}

func nodeID(id string) string {
	// Mermaid ids cannot contain dashes or dots.
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_", ":", "_")
	return "N" + r.Replace(id)
}

func escape(s string) string {
	r := strings.NewReplacer("[", "(", "]", ")", "{", "(", "}", ")", "\"", "'")
	return r.Replace(s)
}
