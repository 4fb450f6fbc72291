package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/simulator"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

func setupTestServer() (*Server, *rules.Store, *topology.Model) {
	gin.SetMode(gin.TestMode)
	rs := rules.NewMemoryStore(nil)
	tm := topology.NewModel(nil)
	return NewServer(util.DefaultConfig(), rs, tm), rs, tm
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _, _ := setupTestServer()
	w := do(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["nodes"])
}

func TestRules_CRUD(t *testing.T) {
	s, rs, _ := setupTestServer()

	w := do(t, s, http.MethodPost, "/api/rules", rules.RuleInput{
		Name: "Block SSH", Severity: "high", Action: "deny", Protocol: "tcp", DstPort: "22",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Rule
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)
	assert.Equal(t, model.ActionDeny, created.Action)

	w = do(t, s, http.MethodPut, "/api/rules/"+created.ID, rules.RuleInput{
		Name: "Block SSH", Severity: "critical", Action: "deny", Protocol: "tcp", DstPort: "22",
	})
	require.Equal(t, http.StatusOK, w.Code)
	got, err := rs.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, got.Severity)

	w = do(t, s, http.MethodPatch, "/api/rules/"+created.ID+"/status", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rs.Enabled())

	w = do(t, s, http.MethodGet, "/api/rules", nil)
	var list []model.Rule
	decode(t, w, &list)
	assert.Len(t, list, 1)

	w = do(t, s, http.MethodDelete, "/api/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, rs.Len())
}

func TestRules_ValidationError(t *testing.T) {
	s, _, _ := setupTestServer()

	w := do(t, s, http.MethodPost, "/api/rules", rules.RuleInput{
		Name: "bad", Severity: "LOW", Action: "ALLOW", DstPort: "70000",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, http.StatusBadRequest, body.Code)
	details := body.Details.(map[string]interface{})
	assert.Equal(t, "dst_port", details["field"])
}

func TestRules_NotFound(t *testing.T) {
	s, _, _ := setupTestServer()

	w := do(t, s, http.MethodDelete, "/api/rules/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, "not_found", body.Error)
}

func TestRules_MoveAndAudit(t *testing.T) {
	s, rs, _ := setupTestServer()

	a, err := rs.Create(rules.RuleInput{Name: "allow all", Severity: "LOW", Action: "ALLOW"})
	require.NoError(t, err)
	b, err := rs.Create(rules.RuleInput{Name: "deny web", Severity: "HIGH", Action: "DENY", DstPort: "80"})
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/rules/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var findings rules.Findings
	decode(t, w, &findings)
	require.Len(t, findings.AllowBeforeDeny, 1)

	w = do(t, s, http.MethodPost, "/api/rules/"+b.ID+"/move", map[string]int{"new_position": 0})
	require.Equal(t, http.StatusOK, w.Code)
	list := rs.List()
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	w = do(t, s, http.MethodPost, "/api/rules/"+b.ID+"/move", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopology_EditAndSimulate(t *testing.T) {
	s, rs, tm := setupTestServer()

	_, err := rs.Create(rules.RuleInput{Name: "Block SSH", Severity: "HIGH", Action: "DENY", Protocol: "TCP", DstPort: "22"})
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/api/topology/nodes", map[string]interface{}{"type": "firewall"})
	require.Equal(t, http.StatusCreated, w.Code)
	var fw model.Node
	decode(t, w, &fw)
	assert.Equal(t, "H-Safe", fw.Data.Label)

	w = do(t, s, http.MethodPost, "/api/topology/nodes", map[string]interface{}{"type": "server", "label": "Web"})
	require.Equal(t, http.StatusCreated, w.Code)
	var srv model.Node
	decode(t, w, &srv)

	for _, pair := range [][2]string{{"1", fw.ID}, {fw.ID, srv.ID}} {
		w = do(t, s, http.MethodPost, "/api/topology/edges", map[string]string{"source": pair[0], "target": pair[1]})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w = do(t, s, http.MethodPost, "/api/topology/edges", map[string]string{"source": srv.ID, "target": fw.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/api/simulate/topology", map[string]interface{}{
		"attacker_node": "1", "target_node": srv.ID, "protocol": "TCP", "dst_port": 22,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res simulator.Result
	decode(t, w, &res)
	assert.Equal(t, model.OutcomeBlocked, res.Outcome)
	require.Len(t, res.Trace, 2)
	assert.Equal(t, fw.ID, res.Trace[1].NodeID)

	w = do(t, s, http.MethodPost, "/api/simulate/topology", map[string]interface{}{
		"attacker_node": "1", "target_node": srv.ID, "dst_port": 443,
	})
	decode(t, w, &res)
	assert.Equal(t, model.OutcomeArrived, res.Outcome)

	w = do(t, s, http.MethodDelete, "/api/topology/nodes/"+fw.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, tm.Edges())

	w = do(t, s, http.MethodPost, "/api/simulate/topology", map[string]interface{}{
		"attacker_node": "1", "target_node": srv.ID,
	})
	decode(t, w, &res)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.NotEmpty(t, res.Message)
}

func TestTopology_ClearAndDiagram(t *testing.T) {
	s, _, tm := setupTestServer()

	_, err := tm.AddNode(model.NodeRouter, "", model.Position{})
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/topology/diagram", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flowchart LR")

	w = do(t, s, http.MethodDelete, "/api/topology", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var topo topologyResponse
	decode(t, w, &topo)
	require.Len(t, topo.Nodes, 1)
	assert.Equal(t, "Admin PC", topo.Nodes[0].Data.Label)
	assert.Empty(t, topo.Edges)

	w = do(t, s, http.MethodPost, "/api/topology/nodes", map[string]interface{}{"type": "toaster"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopology_NodeRulesValidated(t *testing.T) {
	s, _, tm := setupTestServer()

	w := do(t, s, http.MethodPatch, "/api/topology/nodes/1", map[string]interface{}{
		"rules": []map[string]interface{}{{"name": "x", "action": "BLOCK", "severity": "HIGH"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	decode(t, w, &body)
	assert.Equal(t, "validation_error", body.Error)
	details := body.Details.(map[string]interface{})
	assert.Equal(t, "action", details["field"])

	n, err := tm.Node("1")
	require.NoError(t, err)
	assert.Empty(t, n.Data.Rules)
}

func TestReportSummary(t *testing.T) {
	s, _, _ := setupTestServer()

	body := map[string]interface{}{"timeline": []model.TimelineEvent{
		{DstIP: "10.0.0.2", DstPort: 22, Protocol: model.ProtocolTCP, Action: model.ActionDeny, Reason: "x"},
	}}
	w := do(t, s, http.MethodPost, "/api/report/summary", body)
	require.Equal(t, http.StatusOK, w.Code)

	var sum map[string]interface{}
	decode(t, w, &sum)
	assert.EqualValues(t, 1, sum["total"])

	w = do(t, s, http.MethodPost, "/api/report/summary?format=markdown", body)
	assert.Contains(t, w.Body.String(), "- Denied: 1")
}
