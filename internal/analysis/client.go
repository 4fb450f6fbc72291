// Package analysis is the client for the external analysis service that
// parses captures, runs remote topology simulations, generates topologies
// and renders reports.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/simulator"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

// ExportFormats are the report formats the service can render.
var ExportFormats = []string{"pdf", "csv", "json"}

// Client talks to the analysis service. Calls are not retried and nothing
// stops two calls from being in flight at once.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. A zero timeout means none.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientFromConfig creates a client using service_url and service_timeout.
func NewClientFromConfig(cfg *util.Config) *Client {
	return NewClient(cfg.ServiceURL, cfg.ServiceTimeout)
}

// BaseURL returns the service base path.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Simulation is the replayable part of an analysis.
type Simulation struct {
	Timeline []model.TimelineEvent `json:"timeline"`
}

// ReportOverview is the headline of an analysis report.
type ReportOverview struct {
	TotalPackets    int    `json:"total_packets"`
	HighestSeverity string `json:"highest_severity"`
}

// AnalysisResponse is the body of POST /analyze/pcap. The report is kept
// raw so that it can be sent back unchanged for export.
type AnalysisResponse struct {
	Simulation Simulation      `json:"simulation"`
	Report     json.RawMessage `json:"report"`
}

// Overview decodes the report headline and assessment.
func (r *AnalysisResponse) Overview() (ReportOverview, string, error) {
	var rep struct {
		Overview   ReportOverview `json:"overview"`
		Assessment string         `json:"assessment"`
	}
	if len(r.Report) == 0 {
		return rep.Overview, "", nil
	}
	if err := json.Unmarshal(r.Report, &rep); err != nil {
		return ReportOverview{}, "", fmt.Errorf("failed to decode report: %w", err)
	}
	return rep.Overview, rep.Assessment, nil
}

// AnalyzePcap uploads a capture together with the rule list and returns the
// classified timeline and report.
func (c *Client) AnalyzePcap(ctx context.Context, path string, rules []model.Rule) (*AnalysisResponse, error) {
	if rules == nil {
		rules = []model.Rule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}
	if err := mw.WriteField("rules_json", string(rulesJSON)); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/pcap", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out AnalysisResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	util.WithField("events", len(out.Simulation.Timeline)).Info("Capture analysed")
	return &out, nil
}

// SimulateTopology runs a hop simulation on the service.
func (c *Client) SimulateTopology(ctx context.Context, payload topology.SimulationRequest) (*simulator.Result, error) {
	var out simulator.Result
	if err := c.postJSON(ctx, "/simulate/topology", payload, &out); err != nil {
		return nil, err
	}
	if out.Trace == nil {
		out.Trace = []model.HopTraceEntry{}
	}
	return &out, nil
}

// GenerateTopology asks the service for a topology built from a template.
func (c *Client) GenerateTopology(ctx context.Context, template string, params map[string]interface{}) (*topology.Generated, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	body := map[string]interface{}{"prompt": template, "params": params}

	var out topology.Generated
	if err := c.postJSON(ctx, "/simulate/topology/generate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportReport renders report in format and returns the file contents with
// a suggested file name.
func (c *Client) ExportReport(ctx context.Context, report json.RawMessage, format string) ([]byte, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !validFormat(format) {
		return nil, "", fmt.Errorf("%w: %q (use pdf, csv or json)", ErrUnsupportedFormat, format)
	}

	payload, err := json.Marshal(map[string]interface{}{"report": report, "format": format})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode export request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/report/export", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		util.Error("Report export failed: %v", err)
		return nil, "", fmt.Errorf("failed to reach analysis service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read export: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &ServiceError{Status: resp.StatusCode, Detail: parseDetail(data)}
		util.Error("Report export failed: %v", serr)
		return nil, "", serr
	}

	return data, ExportFilename(format, time.Now()), nil
}

// ExportFilename is the name the service gives an exported report.
func ExportFilename(format string, at time.Time) string {
	return fmt.Sprintf("report_%d.%s", at.Unix(), format)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		util.Error("Analysis service call %s failed: %v", req.URL.Path, err)
		return fmt.Errorf("failed to reach analysis service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &ServiceError{Status: resp.StatusCode, Detail: parseDetail(data)}
		util.Error("Analysis service call %s failed: %v", req.URL.Path, serr)
		return serr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func validFormat(f string) bool {
	for _, v := range ExportFormats {
		if v == f {
			return true
		}
	}
	return false
}
