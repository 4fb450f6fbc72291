// Package simulator walks a resolved path hop by hop and enforces the
// rule list at the firewall.
package simulator

import (
	"fmt"
	"time"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

// RuleSource returns the rule list enforced at a node.
type RuleSource func(nodeID string) []model.Rule

// Result is the outcome of one simulation run. Its JSON form matches the
// analysis service's /simulate/topology response.
type Result struct {
	Success   bool                  `json:"success"`
	Outcome   model.Outcome         `json:"outcome"`
	Trace     []model.HopTraceEntry `json:"trace"`
	Message   string                `json:"message,omitempty"`
	Path      []string              `json:"path,omitempty"`
	Packet    model.Packet          `json:"packet"`
	Timestamp float64               `json:"timestamp"`
}

// Simulate walks path in order. Only the canonical firewall hop consults
// rules; a DENY there drops the traffic and ends the walk.
func Simulate(path []string, source RuleSource, p model.Packet) Result {
	res := Result{
		Trace:     []model.HopTraceEntry{},
		Path:      path,
		Packet:    p,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	if len(path) == 0 {
		res.Outcome = model.OutcomeFailed
		res.Message = "no path between attacker and target"
		return res
	}

	for i, hop := range path {
		entry := model.HopTraceEntry{
			Hop:        i + 1,
			NodeID:     hop,
			Action:     model.HopForward,
			Detections: []model.Rule{},
			Details:    fmt.Sprintf("forwarded by %s", hop),
		}

		if hop == topology.FirewallKey {
			var list []model.Rule
			if source != nil {
				list = source(hop)
			}
			d := rules.Classify(list, p)

			switch d.Action {
			case model.ActionDeny:
				entry.Action = model.HopDrop
				entry.Detections = append(entry.Detections, *d.Rule)
				entry.Details = fmt.Sprintf("blocked by rule %q", d.Rule.Name)
				res.Trace = append(res.Trace, entry)
				res.Outcome = model.OutcomeBlocked
				res.Success = true
				res.Message = fmt.Sprintf("traffic blocked at firewall by rule %q", d.Rule.Name)
				return res
			case model.ActionAlert:
				entry.Detections = append(entry.Detections, *d.Rule)
				entry.Details = fmt.Sprintf("alert raised by rule %q, forwarded", d.Rule.Name)
			default:
				if d.Rule != nil {
					entry.Details = fmt.Sprintf("allowed by rule %q", d.Rule.Name)
				} else {
					entry.Details = "no rule matched, allowed by default"
				}
			}
		}

		res.Trace = append(res.Trace, entry)
	}

	res.Outcome = model.OutcomeArrived
	res.Success = true
	res.Message = fmt.Sprintf("traffic reached %s", path[len(path)-1])
	return res
}

// Local runs a simulation request in-process. The request's ids are
// already canonical; the firewall enforces req.Rules.
func Local(req topology.SimulationRequest) Result {
	packet := model.Packet{
		SrcIP:    req.Topology.Nodes[req.AttackerNode].IP,
		DstIP:    req.Topology.Nodes[req.TargetNode].IP,
		DstPort:  req.DstPort,
		Protocol: req.Protocol,
	}

	for _, id := range []string{req.AttackerNode, req.TargetNode} {
		if _, ok := req.Topology.Nodes[id]; !ok {
			res := Simulate(nil, nil, packet)
			res.Message = fmt.Sprintf("node %q is not in the topology", id)
			return res
		}
	}
	if req.AttackerNode == req.TargetNode {
		res := Simulate(nil, nil, packet)
		res.Message = "attacker and target are the same node"
		return res
	}

	nodes, edges := req.Graph()
	path := topology.FindPath(nodes, edges, req.AttackerNode, req.TargetNode)
	res := Simulate(path, func(string) []model.Rule { return req.Rules }, packet)
	if len(path) == 0 {
		res.Message = fmt.Sprintf("no path from %s to %s", req.AttackerNode, req.TargetNode)
	}
	return res
}

// Request builds the canonical simulation request for a topology. The
// firewall enforces its own rule list when it has one, else fallback.
func Request(nodes []model.Node, edges []model.Link, attacker, target string,
	protocol model.Protocol, port int, fallback []model.Rule) (topology.SimulationRequest, *topology.Aliases) {

	aliases := topology.Resolve(nodes)
	enforced := fallback
	if fwID, ok := aliases.FirewallID(); ok {
		for _, n := range nodes {
			if n.ID == fwID && len(n.Data.Rules) > 0 {
				enforced = n.Data.Rules
				break
			}
		}
	}
	return aliases.Payload(nodes, edges, attacker, target, protocol, port, enforced), aliases
}

// Run simulates traffic from attacker to target over the model's current
// graph and reports node ids as they appear in the graph.
func Run(m *topology.Model, attacker, target string, protocol model.Protocol, port int, fallback []model.Rule) Result {
	nodes, edges := m.Snapshot()
	req, aliases := Request(nodes, edges, attacker, target, protocol, port, fallback)

	res := Local(req)
	Restore(&res, aliases)

	util.WithField("outcome", res.Outcome).
		Debugf("Simulated %s -> %s %s/%d", attacker, target, protocol, port)
	return res
}

// Restore rewrites canonical ids in a result back to graph ids.
func Restore(res *Result, aliases *topology.Aliases) {
	for i := range res.Trace {
		res.Trace[i].NodeID = aliases.Original(res.Trace[i].NodeID)
	}
	if res.Path != nil {
		res.Path = aliases.RestorePath(res.Path)
	}
}

// Detections returns every rule recorded across the trace.
func (r Result) Detections() []model.Rule {
	var out []model.Rule
	for _, e := range r.Trace {
		out = append(out, e.Detections...)
	}
	return out
}

// Timeline expresses the run as a one-event timeline. Failed runs have none.
func (r Result) Timeline() []model.TimelineEvent {
	if r.Outcome == model.OutcomeFailed || r.Outcome == "" {
		return []model.TimelineEvent{}
	}

	ev := model.TimelineEvent{
		Timestamp: r.Timestamp,
		SrcIP:     r.Packet.SrcIP,
		DstIP:     r.Packet.DstIP,
		DstPort:   r.Packet.DstPort,
		Protocol:  r.Packet.Protocol,
		Action:    model.ActionAllow,
		Reason:    rules.ReasonDefaultAllow,
	}

	detections := r.Detections()
	switch {
	case r.Outcome == model.OutcomeBlocked:
		ev.Action = model.ActionDeny
	case len(detections) > 0:
		ev.Action = model.ActionAlert
	}
	if len(detections) > 0 {
		ev.Reason = detections[len(detections)-1].Name
	}
	return []model.TimelineEvent{ev}
}
