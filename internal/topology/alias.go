package topology

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/util"
)

// FirewallKey is the canonical id the enforcement node is known by during simulation.
const FirewallKey = "firewall"

// Aliases maps graph ids to simulation ids. Only the enforcement node is
// renamed; every other id maps to itself.
type Aliases struct {
	firewallID string
}

// Resolve picks the enforcement node. With more than one firewall the
// first in node order wins and the rest are treated as plain hops.
func Resolve(nodes []model.Node) *Aliases {
	a := &Aliases{}
	count := 0
	for _, n := range nodes {
		if n.Type != model.NodeFirewall {
			continue
		}
		if count == 0 {
			a.firewallID = n.ID
		}
		count++
	}
	if count > 1 {
		util.WithField("firewall", a.firewallID).
			Warnf("Topology has %d firewall nodes, enforcing only at the first", count)
	}
	return a
}

// FirewallID returns the graph id of the enforcement node.
func (a *Aliases) FirewallID() (string, bool) {
	return a.firewallID, a.firewallID != ""
}

// Canonical returns the simulation id for a graph id.
func (a *Aliases) Canonical(id string) string {
	if a.firewallID != "" && id == a.firewallID {
		return FirewallKey
	}
	return id
}

// Original returns the graph id for a simulation id.
func (a *Aliases) Original(key string) string {
	if a.firewallID != "" && key == FirewallKey {
		return a.firewallID
	}
	return key
}

// RewritePath maps every hop of a graph path to its simulation id.
func (a *Aliases) RewritePath(path []string) []string {
	out := make([]string, len(path))
	for i, id := range path {
		out[i] = a.Canonical(id)
	}
	return out
}

// RestorePath maps every hop of a simulation path back to its graph id.
func (a *Aliases) RestorePath(path []string) []string {
	out := make([]string, len(path))
	for i, id := range path {
		out[i] = a.Original(id)
	}
	return out
}

// NodeRef is how a node appears in a simulation request.
type NodeRef struct {
	IP   string         `json:"ip"`
	Type model.NodeType `json:"type"`
}

// TopologyPayload is the graph section of a simulation request. Paths lists
// both directions of every link.
type TopologyPayload struct {
	Nodes map[string]NodeRef `json:"nodes"`
	Paths [][2]string        `json:"paths"`
}

// SimulationRequest is the body of POST /simulate/topology.
type SimulationRequest struct {
	Topology     TopologyPayload `json:"topology"`
	AttackerNode string          `json:"attacker_node"`
	TargetNode   string          `json:"target_node"`
	Protocol     model.Protocol  `json:"protocol"`
	DstPort      int             `json:"dst_port"`
	Rules        []model.Rule    `json:"rules"`
}

// Payload builds a simulation request with every id, in nodes, paths and
// endpoints alike, rewritten to its canonical form.
func (a *Aliases) Payload(nodes []model.Node, edges []model.Link, attacker, target string,
	protocol model.Protocol, port int, rules []model.Rule) SimulationRequest {

	refs := make(map[string]NodeRef, len(nodes))
	for _, n := range nodes {
		refs[a.Canonical(n.ID)] = NodeRef{IP: NodeIP(n), Type: n.Type}
	}

	paths := make([][2]string, 0, 2*len(edges))
	for _, e := range edges {
		src, dst := a.Canonical(e.Source), a.Canonical(e.Target)
		paths = append(paths, [2]string{src, dst}, [2]string{dst, src})
	}

	if rules == nil {
		rules = []model.Rule{}
	}
	return SimulationRequest{
		Topology:     TopologyPayload{Nodes: refs, Paths: paths},
		AttackerNode: a.Canonical(attacker),
		TargetNode:   a.Canonical(target),
		Protocol:     protocol,
		DstPort:      port,
		Rules:        rules,
	}
}

var nonDigits = regexp.MustCompile(`\D`)

// NodeIP returns the node's address, or a placeholder 10.0.0.x built from
// the digits of its id when none is set.
func NodeIP(n model.Node) string {
	if n.Data.IP != "" {
		return n.Data.IP
	}
	digits := nonDigits.ReplaceAllString(n.ID, "")
	if digits == "" {
		digits = "1"
	}
	return fmt.Sprintf("10.0.0.%s", digits)
}

// Graph rebuilds nodes and undirected links from a request so that it can
// be searched with FindPath. Node order follows the sorted keys.
func (r SimulationRequest) Graph() ([]model.Node, []model.Link) {
	keys := sortedKeys(r.Topology.Nodes)
	nodes := make([]model.Node, 0, len(keys))
	for _, k := range keys {
		ref := r.Topology.Nodes[k]
		nodes = append(nodes, model.Node{ID: k, Type: ref.Type, Data: model.NodeData{IP: ref.IP}})
	}

	seen := make(map[[2]string]bool, len(r.Topology.Paths))
	var edges []model.Link
	for _, p := range r.Topology.Paths {
		if seen[p] || seen[[2]string{p[1], p[0]}] {
			continue
		}
		seen[p] = true
		edges = append(edges, model.Link{ID: fmt.Sprintf("edge_%s_%s", p[0], p[1]), Source: p[0], Target: p[1]})
	}
	return nodes, edges
}

func sortedKeys(m map[string]NodeRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
