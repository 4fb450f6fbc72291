// Package rules implements the ordered firewall rule store and its
// first-match classifier.
package rules

import (
	"github.com/user/hsafe/internal/model"
)

// ReasonDefaultAllow is reported when no enabled rule matched.
const ReasonDefaultAllow = "DEFAULT_ALLOW"

// Decision is the classifier's verdict for one packet.
type Decision struct {
	Action model.Action `json:"action"`
	Rule   *model.Rule  `json:"rule,omitempty"`
	Reason string       `json:"reason"`
}

// Classify returns the decision of the first enabled rule matching p.
// List position is the only priority; an empty or non-matching list allows.
func Classify(rules []model.Rule, p model.Packet) Decision {
	for i := range rules {
		r := &rules[i]
		if !r.Enabled {
			continue
		}
		if Matches(r, p) {
			matched := *r
			return Decision{Action: r.Action, Rule: &matched, Reason: r.Name}
		}
	}
	return Decision{Action: model.ActionAllow, Reason: ReasonDefaultAllow}
}

// Matches reports whether every present condition of r equals the packet field.
// Comparison is exact; there is no prefix or range matching.
func Matches(r *model.Rule, p model.Packet) bool {
	if !r.Protocol.IsWildcard() && r.Protocol != p.Protocol {
		return false
	}
	c := r.Conditions
	if !isWildcard(c.SrcIP) && c.SrcIP != p.SrcIP {
		return false
	}
	if !isWildcard(c.DstIP) && c.DstIP != p.DstIP {
		return false
	}
	if c.DstPort != nil && *c.DstPort != p.DstPort {
		return false
	}
	return true
}

func isWildcard(v string) bool {
	return v == "" || v == model.Wildcard
}
