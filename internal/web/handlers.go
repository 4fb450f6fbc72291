package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/simulator"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

// Handlers contains the rule, topology and simulation handlers.
type Handlers struct {
	config *util.Config
	rules  *rules.Store
	topo   *topology.Model
}

// NewHandlers creates new handlers.
func NewHandlers(cfg *util.Config, rs *rules.Store, tm *topology.Model) *Handlers {
	return &Handlers{
		config: cfg,
		rules:  rs,
		topo:   tm,
	}
}

// Health handles GET /api/health.
func (h *Handlers) Health(c *gin.Context) {
	nodes, edges := h.topo.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rules":  h.rules.Len(),
		"nodes":  len(nodes),
		"edges":  len(edges),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRules handles GET /api/rules.
func (h *Handlers) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.rules.List())
}

// GetRule handles GET /api/rules/:id.
func (h *Handlers) GetRule(c *gin.Context) {
	r, err := h.rules.Get(c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get rule", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// CreateRule handles POST /api/rules.
func (h *Handlers) CreateRule(c *gin.Context) {
	var in rules.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.rules.Create(in)
	if err != nil {
		respondError(c, "Failed to create rule", err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateRule handles PUT /api/rules/:id.
func (h *Handlers) UpdateRule(c *gin.Context) {
	var in rules.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.rules.Update(c.Param("id"), in)
	if err != nil {
		respondError(c, "Failed to update rule", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRule handles DELETE /api/rules/:id.
func (h *Handlers) DeleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Param("id")); err != nil {
		respondError(c, "Failed to delete rule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type moveRequest struct {
	NewPosition *int `json:"new_position" binding:"required"`
}

// MoveRule handles POST /api/rules/:id/move.
func (h *Handlers) MoveRule(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.rules.MoveByID(c.Param("id"), *req.NewPosition); err != nil {
		respondError(c, "Failed to move rule", err)
		return
	}
	c.JSON(http.StatusOK, h.rules.List())
}

type statusRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetRuleStatus handles PATCH /api/rules/:id/status.
func (h *Handlers) SetRuleStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.rules.SetEnabled(c.Param("id"), *req.Enabled)
	if err != nil {
		respondError(c, "Failed to update rule status", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type topologyResponse struct {
	Nodes []model.Node `json:"nodes"`
	Edges []model.Link `json:"edges"`
}

// GetTopology handles GET /api/topology.
func (h *Handlers) GetTopology(c *gin.Context) {
	nodes, edges := h.topo.Snapshot()
	if edges == nil {
		edges = []model.Link{}
	}
	c.JSON(http.StatusOK, topologyResponse{Nodes: nodes, Edges: edges})
}

// ClearTopology handles DELETE /api/topology.
func (h *Handlers) ClearTopology(c *gin.Context) {
	if err := h.topo.Clear(); err != nil {
		respondError(c, "Failed to clear topology", err)
		return
	}
	h.GetTopology(c)
}

type addNodeRequest struct {
	Type     model.NodeType `json:"type" binding:"required"`
	Label    string         `json:"label"`
	Position model.Position `json:"position"`
}

// AddNode handles POST /api/topology/nodes.
func (h *Handlers) AddNode(c *gin.Context) {
	var req addNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	n, err := h.topo.AddNode(req.Type, req.Label, req.Position)
	if err != nil {
		respondError(c, "Failed to add node", err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// UpdateNode handles PATCH /api/topology/nodes/:id.
func (h *Handlers) UpdateNode(c *gin.Context) {
	var patch topology.NodePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	n, err := h.topo.UpdateNode(c.Param("id"), patch)
	if err != nil {
		respondError(c, "Failed to update node", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// RemoveNode handles DELETE /api/topology/nodes/:id.
func (h *Handlers) RemoveNode(c *gin.Context) {
	if err := h.topo.RemoveNode(c.Param("id")); err != nil {
		respondError(c, "Failed to remove node", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type connectRequest struct {
	Source string `json:"source" binding:"required"`
	Target string `json:"target" binding:"required"`
}

// Connect handles POST /api/topology/edges.
func (h *Handlers) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	l, err := h.topo.Connect(req.Source, req.Target)
	if err != nil {
		respondError(c, "Failed to link nodes", err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// Disconnect handles DELETE /api/topology/edges/:id.
func (h *Handlers) Disconnect(c *gin.Context) {
	if err := h.topo.Disconnect(c.Param("id")); err != nil {
		respondError(c, "Failed to remove link", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type simulateRequest struct {
	AttackerNode string         `json:"attacker_node" binding:"required"`
	TargetNode   string         `json:"target_node" binding:"required"`
	Protocol     model.Protocol `json:"protocol"`
	DstPort      *int           `json:"dst_port"`
}

// SimulateTopology handles POST /api/simulate/topology. Resolution
// failures are reported as a FAILED outcome, not as an error status.
func (h *Handlers) SimulateTopology(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	proto := req.Protocol
	if proto.IsWildcard() {
		proto = model.Protocol(h.config.DefaultProtocol)
	}
	if !proto.Valid() {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid protocol",
			FieldError{Field: "protocol", Message: fmt.Sprintf("%q is not one of TCP, UDP, ICMP", proto)})
		return
	}

	port := h.config.DefaultPort
	if req.DstPort != nil {
		port = *req.DstPort
	}
	if port < 0 || port > 65535 {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid port",
			FieldError{Field: "dst_port", Message: "must be between 0 and 65535"})
		return
	}

	res := simulator.Run(h.topo, req.AttackerNode, req.TargetNode, proto, port, h.rules.Enabled())
	c.JSON(http.StatusOK, res)
}
