// Package model defines core data structures for hsafe.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Severity ranks how serious a rule match is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal of the severity, -1 if unknown.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Protocol is a transport protocol. The empty value and ProtocolAny are wildcards.
type Protocol string

const (
	ProtocolTCP  Protocol = "TCP"
	ProtocolUDP  Protocol = "UDP"
	ProtocolICMP Protocol = "ICMP"
	ProtocolAny  Protocol = "ANY"
)

// IsWildcard reports whether the protocol matches every packet.
func (p Protocol) IsWildcard() bool {
	return p == "" || p == ProtocolAny
}

// Valid reports whether p is a known protocol or a wildcard.
func (p Protocol) Valid() bool {
	switch p {
	case "", ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolAny:
		return true
	}
	return false
}

// MarshalJSON encodes wildcards as null.
func (p Protocol) MarshalJSON() ([]byte, error) {
	if p.IsWildcard() {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON accepts null, "ANY" or a protocol name in any case.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Protocol(strings.ToUpper(strings.TrimSpace(s)))
	if *p == ProtocolAny {
		*p = ""
	}
	return nil
}

// Action is what a rule does with matching traffic.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
	ActionAlert Action = "ALERT"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionAllow || a == ActionDeny || a == ActionAlert
}

// Wildcard is the literal accepted in address conditions to match anything.
const Wildcard = "ANY"

// Conditions restrict which packets a rule matches. Empty fields match everything.
type Conditions struct {
	SrcIP   string `json:"src_ip,omitempty"`
	DstIP   string `json:"dst_ip,omitempty"`
	DstPort *int   `json:"dst_port,omitempty"`
}

// Rule is a single classification rule.
//
// Priority is the rule's index in its list. Position mirrors that index for
// consumers that expect it on the wire; nothing reads it back for matching.
type Rule struct {
	ID          string     `json:"rule_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Severity    Severity   `json:"severity"`
	Protocol    Protocol   `json:"protocol"`
	Action      Action     `json:"action"`
	Conditions  Conditions `json:"conditions"`
	Enabled     bool       `json:"enabled"`
	Position    int        `json:"position"`
}

// Packet is the reduced tuple the rule engine classifies.
type Packet struct {
	SrcIP    string   `json:"src_ip"`
	DstIP    string   `json:"dst_ip"`
	DstPort  int      `json:"dst_port"`
	Protocol Protocol `json:"protocol"`
}

// NodeType is the role a device plays in the topology.
type NodeType string

const (
	NodeHost     NodeType = "host"
	NodeServer   NodeType = "server"
	NodeRouter   NodeType = "router"
	NodeFirewall NodeType = "firewall"
	NodeCloud    NodeType = "cloud"
	NodeSwitch   NodeType = "switch"
)

// NodeTypes lists every placeable node type.
var NodeTypes = []NodeType{NodeHost, NodeServer, NodeRouter, NodeFirewall, NodeCloud, NodeSwitch}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, nt := range NodeTypes {
		if t == nt {
			return true
		}
	}
	return false
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds a node's editable properties.
type NodeData struct {
	Label   string `json:"label"`
	IP      string `json:"ip,omitempty"`
	Subnet  string `json:"subnet,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Node is a device in the topology.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Link connects two nodes. Traversal treats it as undirected.
type Link struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// TimelineEvent is one classified traffic event.
type TimelineEvent struct {
	Timestamp float64  `json:"timestamp"`
	SrcIP     string   `json:"src_ip"`
	DstIP     string   `json:"dst_ip"`
	DstPort   int      `json:"dst_port"`
	Protocol  Protocol `json:"protocol"`
	Action    Action   `json:"action"`
	Reason    string   `json:"reason,omitempty"`
}

// HopAction is what happened to traffic at a hop.
type HopAction string

const (
	HopForward HopAction = "FORWARD"
	HopDrop    HopAction = "DROP"
)

// HopTraceEntry records one visited hop.
type HopTraceEntry struct {
	Hop        int       `json:"hop"`
	NodeID     string    `json:"node_id"`
	Action     HopAction `json:"action"`
	Detections []Rule    `json:"detections"`
	Details    string    `json:"details"`
}

// Outcome is the terminal state of a hop simulation.
type Outcome string

const (
	OutcomeArrived Outcome = "ARRIVED"
	OutcomeBlocked Outcome = "BLOCKED"
	OutcomeFailed  Outcome = "FAILED"
)
