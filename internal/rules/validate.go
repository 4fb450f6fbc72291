package rules

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/user/hsafe/internal/model"
)

// RuleInput is the raw form submission for creating or editing a rule.
// Every field is a string so that malformed values are caught here and
// never reach the engine.
type RuleInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Protocol    string `json:"protocol"`
	Action      string `json:"action"`
	SrcIP       string `json:"src_ip"`
	DstIP       string `json:"dst_ip"`
	DstPort     string `json:"dst_port"`
	Enabled     *bool  `json:"enabled,omitempty"`
	Position    *int   `json:"position,omitempty"`
}

// Validate checks the input and converts it into a rule without an id.
func (in RuleInput) Validate() (model.Rule, error) {
	var r model.Rule

	r.Name = strings.TrimSpace(in.Name)
	if r.Name == "" {
		return r, invalid("name", "must not be empty")
	}
	r.Description = strings.TrimSpace(in.Description)

	r.Severity = model.Severity(normalize(in.Severity))
	if !r.Severity.Valid() {
		return r, invalid("severity", "%q is not one of LOW, MEDIUM, HIGH, CRITICAL", in.Severity)
	}

	r.Action = model.Action(normalize(in.Action))
	if !r.Action.Valid() {
		return r, invalid("action", "%q is not one of ALLOW, DENY, ALERT", in.Action)
	}

	proto := model.Protocol(normalize(in.Protocol))
	if !proto.Valid() {
		return r, invalid("protocol", "%q is not one of TCP, UDP, ICMP, ANY", in.Protocol)
	}
	if proto.IsWildcard() {
		proto = ""
	}
	r.Protocol = proto

	src, err := parseAddress("src_ip", in.SrcIP)
	if err != nil {
		return r, err
	}
	dst, err := parseAddress("dst_ip", in.DstIP)
	if err != nil {
		return r, err
	}
	port, err := parsePort(in.DstPort)
	if err != nil {
		return r, err
	}
	r.Conditions = model.Conditions{SrcIP: src, DstIP: dst, DstPort: port}

	r.Enabled = true
	if in.Enabled != nil {
		r.Enabled = *in.Enabled
	}
	return r, nil
}

// Sanitize runs already-built rules, such as a firewall's own list or an
// imported file, through the same checks as form input. Ids are kept and
// missing ones are assigned; positions follow list order.
func Sanitize(list []model.Rule) ([]model.Rule, error) {
	out := make([]model.Rule, 0, len(list))
	for i, r := range list {
		clean, err := InputFromRule(r).Validate()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Name, err)
		}
		clean.ID = r.ID
		if clean.ID == "" {
			clean.ID = uuid.NewString()
		}
		clean.Position = i
		out = append(out, clean)
	}
	return out, nil
}

// InputFromRule converts a stored rule back into form values.
func InputFromRule(r model.Rule) RuleInput {
	in := RuleInput{
		Name:        r.Name,
		Description: r.Description,
		Severity:    string(r.Severity),
		Protocol:    string(r.Protocol),
		Action:      string(r.Action),
		SrcIP:       r.Conditions.SrcIP,
		DstIP:       r.Conditions.DstIP,
	}
	if r.Conditions.DstPort != nil {
		in.DstPort = strconv.Itoa(*r.Conditions.DstPort)
	}
	enabled := r.Enabled
	in.Enabled = &enabled
	return in
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func parseAddress(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, model.Wildcard) {
		return "", nil
	}
	if net.ParseIP(s) == nil {
		return "", invalid(field, "%q is not an IP address", s)
	}
	return s, nil
}

func parsePort(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, model.Wildcard) {
		return nil, nil
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return nil, invalid("dst_port", "%q is not a number", s)
	}
	if port < 0 || port > 65535 {
		return nil, invalid("dst_port", "%d is out of range 0-65535", port)
	}
	return &port, nil
}
