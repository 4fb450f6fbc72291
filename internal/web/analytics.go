package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/report"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/topology"
)

// AnalyticsHandlers serves derived views: audits, diagrams and summaries.
type AnalyticsHandlers struct {
	rules *rules.Store
	topo  *topology.Model
}

// NewAnalyticsHandlers creates analytics handlers.
func NewAnalyticsHandlers(rs *rules.Store, tm *topology.Model) *AnalyticsHandlers {
	return &AnalyticsHandlers{rules: rs, topo: tm}
}

// AuditRules handles GET /api/rules/audit.
func (a *AnalyticsHandlers) AuditRules(c *gin.Context) {
	c.JSON(http.StatusOK, rules.Audit(a.rules.List()))
}

// TopologyDiagram handles GET /api/topology/diagram, returning Mermaid text.
func (a *AnalyticsHandlers) TopologyDiagram(c *gin.Context) {
	nodes, edges := a.topo.Snapshot()
	c.String(http.StatusOK, report.TopologyDiagram(nodes, edges))
}

type summaryRequest struct {
	Timeline []model.TimelineEvent `json:"timeline"`
}

// Summary handles POST /api/report/summary. With ?format=markdown the
// summary is rendered as a document.
func (a *AnalyticsHandlers) Summary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	rs := a.rules.List()
	s := report.Summarize(req.Timeline, rs).WithAudit(rs)

	if c.Query("format") == "markdown" {
		c.String(http.StatusOK, report.FormatMarkdown(s))
		return
	}
	c.JSON(http.StatusOK, s)
}
