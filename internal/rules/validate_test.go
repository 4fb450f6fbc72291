package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/hsafe/internal/model"
)

func TestRuleInput_Validate(t *testing.T) {
	tests := []struct {
		name      string
		in        RuleInput
		wantField string
	}{
		{"missing name", RuleInput{Severity: "LOW", Action: "DENY"}, "name"},
		{"bad severity", RuleInput{Name: "x", Severity: "SEVERE", Action: "DENY"}, "severity"},
		{"bad action", RuleInput{Name: "x", Severity: "LOW", Action: "DROP"}, "action"},
		{"bad protocol", RuleInput{Name: "x", Severity: "LOW", Action: "DENY", Protocol: "SCTP"}, "protocol"},
		{"bad src ip", RuleInput{Name: "x", Severity: "LOW", Action: "DENY", SrcIP: "10.0.0"}, "src_ip"},
		{"bad dst ip", RuleInput{Name: "x", Severity: "LOW", Action: "DENY", DstIP: "host"}, "dst_ip"},
		{"non numeric port", RuleInput{Name: "x", Severity: "LOW", Action: "DENY", DstPort: "http"}, "dst_port"},
		{"port out of range", RuleInput{Name: "x", Severity: "LOW", Action: "DENY", DstPort: "70000"}, "dst_port"},
		{"ok", RuleInput{Name: "x", Severity: "low", Action: "alert", Protocol: "udp", DstPort: " 53 "}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestRuleInput_ValidateWildcards(t *testing.T) {
	r, err := RuleInput{
		Name: "any", Severity: "LOW", Action: "ALLOW",
		Protocol: "any", SrcIP: "ANY", DstIP: "", DstPort: "any",
	}.Validate()
	require.NoError(t, err)

	assert.Equal(t, model.Protocol(""), r.Protocol)
	assert.Empty(t, r.Conditions.SrcIP)
	assert.Empty(t, r.Conditions.DstIP)
	assert.Nil(t, r.Conditions.DstPort)
	assert.True(t, r.Enabled)
}

func TestInputFromRule_RoundTrip(t *testing.T) {
	orig, err := RuleInput{Name: "web", Severity: "HIGH", Action: "DENY", Protocol: "TCP", DstIP: "10.0.0.5", DstPort: "80"}.Validate()
	require.NoError(t, err)

	again, err := InputFromRule(orig).Validate()
	require.NoError(t, err)
	assert.Equal(t, orig, again)
}

func TestMoveElement(t *testing.T) {
	list := []string{"a", "b", "c", "d"}

	assert.Equal(t, []string{"b", "c", "a", "d"}, MoveElement(list, 0, 2))
	assert.Equal(t, []string{"d", "a", "b", "c"}, MoveElement(list, 3, 0))
	assert.Equal(t, []string{"b", "c", "d", "a"}, MoveElement(list, 0, 99))
	assert.Equal(t, []string{"c", "a", "b", "d"}, MoveElement(list, 2, -5))
	assert.Equal(t, list, MoveElement(list, 1, 1))
	assert.Equal(t, []string{"a", "b", "c", "d"}, list, "input must not be modified")
	assert.Empty(t, MoveElement([]string{}, 0, 1))
}
