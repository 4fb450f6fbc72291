package rules

import (
	"fmt"

	"github.com/user/hsafe/internal/model"
)

// Recommendation texts emitted by Audit.
const (
	RecommendReorder     = "Review ALLOW rules placed before DENY rules; consider reordering to avoid bypassing security controls."
	RecommendRemove      = "Remove or refactor shadowed rules that will never be evaluated."
	RecommendConsolidate = "Consolidate overlapping ALERT rules to reduce noise."
	RecommendClean       = "Policy order appears clean with no critical issues detected."
)

// Shadowed records a rule that an earlier ALLOW or DENY rule always preempts.
type Shadowed struct {
	RuleID     string `json:"shadowed_rule_id"`
	ShadowedBy string `json:"shadowed_by"`
	Reason     string `json:"reason"`
}

// AllowBeforeDeny records an ALLOW rule that hides a later DENY rule.
type AllowBeforeDeny struct {
	AllowRule string `json:"allow_rule"`
	DenyRule  string `json:"deny_rule"`
	Risk      string `json:"risk"`
}

// OverlappingAlert records two ALERT rules that match the same traffic.
type OverlappingAlert struct {
	Rule1 string `json:"rule_1"`
	Rule2 string `json:"rule_2"`
	Note  string `json:"note"`
}

// Findings is the result of a policy order audit.
type Findings struct {
	Shadowed          []Shadowed         `json:"shadowed_rules"`
	AllowBeforeDeny   []AllowBeforeDeny  `json:"allow_before_deny"`
	OverlappingAlerts []OverlappingAlert `json:"overlapping_rules"`
	Recommendations   []string           `json:"recommendations"`
}

// Clean reports whether the audit found nothing to fix.
func (f Findings) Clean() bool {
	return len(f.Shadowed) == 0 && len(f.AllowBeforeDeny) == 0 && len(f.OverlappingAlerts) == 0
}

// Audit checks every ordered pair of enabled rules whose traffic overlaps.
func Audit(rules []model.Rule) Findings {
	f := Findings{
		Shadowed:          []Shadowed{},
		AllowBeforeDeny:   []AllowBeforeDeny{},
		OverlappingAlerts: []OverlappingAlert{},
	}

	var enabled []model.Rule
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}

	for i, ri := range enabled {
		for _, rj := range enabled[i+1:] {
			if !Overlap(ri, rj) {
				continue
			}

			if ri.Action == model.ActionAllow || ri.Action == model.ActionDeny {
				f.Shadowed = append(f.Shadowed, Shadowed{
					RuleID:     rj.ID,
					ShadowedBy: ri.ID,
					Reason:     fmt.Sprintf("%s rule earlier in policy", ri.Action),
				})
			}
			if ri.Action == model.ActionAllow && rj.Action == model.ActionDeny {
				f.AllowBeforeDeny = append(f.AllowBeforeDeny, AllowBeforeDeny{
					AllowRule: ri.ID,
					DenyRule:  rj.ID,
					Risk:      "DENY rule may never trigger",
				})
			}
			if ri.Action == model.ActionAlert && rj.Action == model.ActionAlert {
				f.OverlappingAlerts = append(f.OverlappingAlerts, OverlappingAlert{
					Rule1: ri.ID,
					Rule2: rj.ID,
					Note:  "Multiple ALERT rules match same traffic",
				})
			}
		}
	}

	if len(f.AllowBeforeDeny) > 0 {
		f.Recommendations = append(f.Recommendations, RecommendReorder)
	}
	if len(f.Shadowed) > 0 {
		f.Recommendations = append(f.Recommendations, RecommendRemove)
	}
	if len(f.OverlappingAlerts) > 0 {
		f.Recommendations = append(f.Recommendations, RecommendConsolidate)
	}
	if len(f.Recommendations) == 0 {
		f.Recommendations = append(f.Recommendations, RecommendClean)
	}
	return f
}

// Overlap reports whether some packet could match both rules: every field
// is a wildcard on either side or equal on both.
func Overlap(a, b model.Rule) bool {
	if !a.Protocol.IsWildcard() && !b.Protocol.IsWildcard() && a.Protocol != b.Protocol {
		return false
	}
	if !isWildcard(a.Conditions.SrcIP) && !isWildcard(b.Conditions.SrcIP) &&
		a.Conditions.SrcIP != b.Conditions.SrcIP {
		return false
	}
	if !isWildcard(a.Conditions.DstIP) && !isWildcard(b.Conditions.DstIP) &&
		a.Conditions.DstIP != b.Conditions.DstIP {
		return false
	}
	if a.Conditions.DstPort != nil && b.Conditions.DstPort != nil &&
		*a.Conditions.DstPort != *b.Conditions.DstPort {
		return false
	}
	return true
}
