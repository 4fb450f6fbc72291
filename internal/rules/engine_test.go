package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/hsafe/internal/model"
)

func port(p int) *int { return &p }

func rule(id string, action model.Action, cond model.Conditions) model.Rule {
	return model.Rule{
		ID:         id,
		Name:       id,
		Severity:   model.SeverityMedium,
		Action:     action,
		Conditions: cond,
		Enabled:    true,
	}
}

func TestClassify_OrderSensitivity(t *testing.T) {
	deny22 := rule("deny-ssh", model.ActionDeny, model.Conditions{DstPort: port(22)})
	allowAll := rule("allow-all", model.ActionAllow, model.Conditions{})
	pkt := model.Packet{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", DstPort: 22, Protocol: model.ProtocolTCP}

	d := Classify([]model.Rule{deny22, allowAll}, pkt)
	assert.Equal(t, model.ActionDeny, d.Action)
	assert.Equal(t, "deny-ssh", d.Rule.ID)

	d = Classify([]model.Rule{allowAll, deny22}, pkt)
	assert.Equal(t, model.ActionAllow, d.Action)
	assert.Equal(t, "allow-all", d.Rule.ID)
}

func TestClassify_FailOpen(t *testing.T) {
	d := Classify(nil, model.Packet{DstPort: 443, Protocol: model.ProtocolUDP})
	assert.Equal(t, model.ActionAllow, d.Action)
	assert.Nil(t, d.Rule)
	assert.Equal(t, ReasonDefaultAllow, d.Reason)
}

func TestClassify_SkipsDisabled(t *testing.T) {
	deny := rule("deny", model.ActionDeny, model.Conditions{})
	deny.Enabled = false
	alert := rule("alert", model.ActionAlert, model.Conditions{})

	d := Classify([]model.Rule{deny, alert}, model.Packet{DstPort: 80})
	assert.Equal(t, model.ActionAlert, d.Action)
	assert.Equal(t, "alert", d.Rule.ID)
}

func TestClassify_ExactMatchOnly(t *testing.T) {
	r := rule("exact", model.ActionDeny, model.Conditions{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"})

	tests := []struct {
		name   string
		packet model.Packet
		want   model.Action
	}{
		{"both equal", model.Packet{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"}, model.ActionDeny},
		{"src differs", model.Packet{SrcIP: "10.0.0.10", DstIP: "10.0.0.2"}, model.ActionAllow},
		{"no prefix match", model.Packet{SrcIP: "10.0.0.1", DstIP: "10.0.0.20"}, model.ActionAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]model.Rule{r}, tt.packet).Action)
		})
	}
}

func TestClassify_ProtocolCondition(t *testing.T) {
	udp := rule("udp", model.ActionDeny, model.Conditions{})
	udp.Protocol = model.ProtocolUDP

	assert.Equal(t, model.ActionDeny, Classify([]model.Rule{udp}, model.Packet{Protocol: model.ProtocolUDP}).Action)
	assert.Equal(t, model.ActionAllow, Classify([]model.Rule{udp}, model.Packet{Protocol: model.ProtocolTCP}).Action)

	udp.Protocol = model.ProtocolAny
	assert.Equal(t, model.ActionDeny, Classify([]model.Rule{udp}, model.Packet{Protocol: model.ProtocolTCP}).Action)
}

func TestClassify_AnyLiteralIsWildcard(t *testing.T) {
	r := rule("any", model.ActionAlert, model.Conditions{SrcIP: "ANY", DstIP: "ANY"})
	d := Classify([]model.Rule{r}, model.Packet{SrcIP: "1.2.3.4", DstIP: "5.6.7.8", DstPort: 9})
	assert.Equal(t, model.ActionAlert, d.Action)
}

func TestClassify_ReturnsCopyOfRule(t *testing.T) {
	list := []model.Rule{rule("r", model.ActionDeny, model.Conditions{})}
	d := Classify(list, model.Packet{})
	d.Rule.Name = "changed"
	assert.Equal(t, "r", list[0].Name)
}
