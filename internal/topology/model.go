// Package topology holds the device graph, the path resolver and the
// firewall alias mapping used to build simulation requests.
package topology

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/storage"
	"github.com/user/hsafe/internal/util"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrDuplicateNode   = errors.New("duplicate node")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrInvalidLink     = errors.New("invalid link")
	ErrInvalidNodeType = errors.New("invalid node type")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrReservedID      = errors.New("reserved node id")
)

// Persister is the key-value store nodes and edges are saved into.
type Persister interface {
	LoadJSON(key string, dst interface{}) (bool, error)
	SaveJSON(key string, v interface{}) error
}

// DefaultNodes is the topology a fresh or cleared session starts with.
func DefaultNodes() []model.Node {
	return []model.Node{{
		ID:       "1",
		Type:     model.NodeHost,
		Position: model.Position{X: 250, Y: 5},
		Data:     model.NodeData{Label: "Admin PC"},
	}}
}

// NodePatch carries the fields of a node property edit. Nil fields are left alone.
type NodePatch struct {
	Type     *model.NodeType `json:"type,omitempty"`
	Label    *string         `json:"label,omitempty"`
	IP       *string         `json:"ip,omitempty"`
	Subnet   *string         `json:"subnet,omitempty"`
	Gateway  *string         `json:"gateway,omitempty"`
	Position *model.Position `json:"position,omitempty"`
	Rules    *[]model.Rule   `json:"rules,omitempty"`
}

// Model is the session's topology: ordered nodes and links.
type Model struct {
	mu     sync.RWMutex
	nodes  []model.Node
	edges  []model.Link
	nextID int
	kv     Persister
}

// NewModel creates a model holding the default topology. A nil persister
// keeps everything in memory.
func NewModel(kv Persister) *Model {
	m := &Model{kv: kv}
	m.reset(DefaultNodes(), nil)
	return m
}

// NewMemoryModel creates an unpersisted model from the given graph.
func NewMemoryModel(nodes []model.Node, edges []model.Link) *Model {
	m := &Model{}
	m.reset(nodes, edges)
	return m
}

// Load reads persisted nodes and edges. Missing nodes fall back to the
// default topology; read errors are logged and do the same.
func (m *Model) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kv == nil {
		return
	}

	var nodes []model.Node
	var edges []model.Link

	ok, err := m.kv.LoadJSON(storage.KeyTopologyNodes, &nodes)
	if err != nil {
		util.Warn("Failed to load topology nodes, using default: %v", err)
		m.reset(DefaultNodes(), nil)
		return
	}
	if !ok || len(nodes) == 0 {
		m.reset(DefaultNodes(), nil)
		return
	}

	if _, err := m.kv.LoadJSON(storage.KeyTopologyEdges, &edges); err != nil {
		util.Warn("Failed to load topology edges, dropping links: %v", err)
		edges = nil
	}

	m.reset(nodes, pruneEdges(nodes, edges))
	util.Debug("Loaded topology with %d nodes and %d edges", len(m.nodes), len(m.edges))
}

// Nodes returns a copy of the nodes in insertion order.
func (m *Model) Nodes() []model.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneNodes(m.nodes)
}

// Edges returns a copy of the links in insertion order.
func (m *Model) Edges() []model.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Link(nil), m.edges...)
}

// Snapshot returns nodes and edges taken under one lock.
func (m *Model) Snapshot() ([]model.Node, []model.Link) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneNodes(m.nodes), append([]model.Link(nil), m.edges...)
}

// Node returns the node with the given id.
func (m *Model) Node(id string) (model.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.nodeIndex(id)
	if i < 0 {
		return model.Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return cloneNode(m.nodes[i]), nil
}

// Firewall returns the enforcement node: the first firewall in node order.
func (m *Model) Firewall() (model.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.nodes {
		if n.Type == model.NodeFirewall {
			return cloneNode(n), true
		}
	}
	return model.Node{}, false
}

// AddNode places a new node and returns it. An empty label defaults to the type name.
func (m *Model) AddNode(t model.NodeType, label string, pos model.Position) (model.Node, error) {
	if !t.Valid() {
		return model.Node{}, fmt.Errorf("%w: %q", ErrInvalidNodeType, t)
	}
	if label == "" {
		label = defaultLabel(t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.allocID()
	n := model.Node{
		ID:       id,
		Type:     t,
		Position: pos,
		Data:     model.NodeData{Label: label},
	}
	m.nodes = append(m.nodes, n)
	return cloneNode(n), m.save()
}

// UpdateNode applies a property edit.
func (m *Model) UpdateNode(id string, patch NodePatch) (model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.nodeIndex(id)
	if i < 0 {
		return model.Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n := cloneNode(m.nodes[i])

	if patch.Type != nil {
		if !patch.Type.Valid() {
			return model.Node{}, fmt.Errorf("%w: %q", ErrInvalidNodeType, *patch.Type)
		}
		n.Type = *patch.Type
	}
	if patch.Label != nil {
		n.Data.Label = *patch.Label
	}
	if patch.IP != nil {
		ip := strings.TrimSpace(*patch.IP)
		if ip != "" && net.ParseIP(ip) == nil {
			return model.Node{}, fmt.Errorf("%w: ip %q", ErrInvalidAddress, ip)
		}
		n.Data.IP = ip
	}
	if patch.Subnet != nil {
		n.Data.Subnet = strings.TrimSpace(*patch.Subnet)
	}
	if patch.Gateway != nil {
		gw := strings.TrimSpace(*patch.Gateway)
		if gw != "" && net.ParseIP(gw) == nil {
			return model.Node{}, fmt.Errorf("%w: gateway %q", ErrInvalidAddress, gw)
		}
		n.Data.Gateway = gw
	}
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Rules != nil {
		list, err := rules.Sanitize(*patch.Rules)
		if err != nil {
			return model.Node{}, fmt.Errorf("failed to set rules on %s: %w", id, err)
		}
		n.Data.Rules = list
	}

	if patch.Type != nil {
		next := cloneNodes(m.nodes)
		next[i] = n
		if err := checkReservedID(next); err != nil {
			return model.Node{}, err
		}
	}

	m.nodes[i] = n
	return cloneNode(n), m.save()
}

// RemoveNode deletes a node together with every link touching it.
func (m *Model) RemoveNode(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.nodeIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)

	kept := m.edges[:0]
	for _, e := range m.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	m.edges = kept
	return m.save()
}

// Connect links two existing, distinct, not yet linked nodes.
func (m *Model) Connect(source, target string) (model.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if source == target {
		return model.Link{}, fmt.Errorf("%w: cannot link %s to itself", ErrInvalidLink, source)
	}
	for _, id := range []string{source, target} {
		if m.nodeIndex(id) < 0 {
			return model.Link{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}
	}
	for _, e := range m.edges {
		if (e.Source == source && e.Target == target) || (e.Source == target && e.Target == source) {
			return model.Link{}, fmt.Errorf("%w: %s and %s are already linked", ErrInvalidLink, source, target)
		}
	}

	l := model.Link{
		ID:     fmt.Sprintf("edge_%s_%s", source, target),
		Source: source,
		Target: target,
	}
	m.edges = append(m.edges, l)
	return l, m.save()
}

// Disconnect removes a link by id.
func (m *Model) Disconnect(edgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.edges {
		if e.ID == edgeID {
			m.edges = append(m.edges[:i], m.edges[i+1:]...)
			return m.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
}

// Clear resets to the default topology.
func (m *Model) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset(DefaultNodes(), nil)
	return m.save()
}

// Replace swaps in a whole graph, e.g. one produced by the generator.
// Node ids must be unique and links must reference known nodes.
func (m *Model) Replace(nodes []model.Node, edges []model.Link) error {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("node id must not be empty")
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		if !n.Type.Valid() {
			return fmt.Errorf("%w: %q on node %s", ErrInvalidNodeType, n.Type, n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range edges {
		if !seen[e.Source] || !seen[e.Target] {
			return fmt.Errorf("%w: edge %s references unknown node", ErrInvalidLink, e.ID)
		}
	}
	if err := checkReservedID(nodes); err != nil {
		return err
	}

	nodes = cloneNodes(nodes)
	for i := range nodes {
		if nodes[i].Data.Rules == nil {
			continue
		}
		list, err := rules.Sanitize(nodes[i].Data.Rules)
		if err != nil {
			return fmt.Errorf("failed to set rules on %s: %w", nodes[i].ID, err)
		}
		nodes[i].Data.Rules = list
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset(nodes, edges)
	return m.save()
}

// checkReservedID allows the id FirewallKey only on the node that enforces
// rules, the first firewall. Anywhere else the canonical alias would
// collide with it.
func checkReservedID(nodes []model.Node) error {
	fw := ""
	for _, n := range nodes {
		if n.Type == model.NodeFirewall {
			fw = n.ID
			break
		}
	}
	for _, n := range nodes {
		if n.ID == FirewallKey && n.ID != fw {
			return fmt.Errorf("%w: %q is kept for the enforcing firewall", ErrReservedID, FirewallKey)
		}
	}
	return nil
}

func (m *Model) reset(nodes []model.Node, edges []model.Link) {
	m.nodes = cloneNodes(nodes)
	m.edges = append([]model.Link(nil), edges...)
	m.nextID = 0
	for _, n := range m.nodes {
		if k, ok := nodeSeq(n.ID); ok && k >= m.nextID {
			m.nextID = k + 1
		}
	}
}

func (m *Model) allocID() string {
	for {
		id := fmt.Sprintf("node_%d", m.nextID)
		m.nextID++
		if m.nodeIndex(id) < 0 {
			return id
		}
	}
}

func (m *Model) nodeIndex(id string) int {
	for i := range m.nodes {
		if m.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// save writes nodes and edges through. The in-memory change is kept on failure.
func (m *Model) save() error {
	if m.kv == nil {
		return nil
	}
	if err := m.kv.SaveJSON(storage.KeyTopologyNodes, m.nodes); err != nil {
		util.Error("Failed to persist topology nodes: %v", err)
		return fmt.Errorf("failed to persist topology: %w", err)
	}
	if err := m.kv.SaveJSON(storage.KeyTopologyEdges, m.edges); err != nil {
		util.Error("Failed to persist topology edges: %v", err)
		return fmt.Errorf("failed to persist topology: %w", err)
	}
	return nil
}

func nodeSeq(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "node_")
	if !ok {
		return 0, false
	}
	k, err := strconv.Atoi(rest)
	return k, err == nil
}

func pruneEdges(nodes []model.Node, edges []model.Link) []model.Link {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	var out []model.Link
	for _, e := range edges {
		if known[e.Source] && known[e.Target] {
			out = append(out, e)
		} else {
			util.Warn("Dropping link %s with unknown endpoint", e.ID)
		}
	}
	return out
}

func defaultLabel(t model.NodeType) string {
	switch t {
	case model.NodeFirewall:
		return "H-Safe"
	case model.NodeCloud:
		return "Internet"
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

func cloneNode(n model.Node) model.Node {
	if n.Data.Rules != nil {
		n.Data.Rules = append([]model.Rule(nil), n.Data.Rules...)
	}
	return n
}

func cloneNodes(nodes []model.Node) []model.Node {
	if nodes == nil {
		return nil
	}
	out := make([]model.Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}
