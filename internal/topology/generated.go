package topology

import (
	"fmt"
	"strings"

	"github.com/user/hsafe/internal/model"
	"github.com/user/hsafe/internal/util"
)

// Templates the topology generator understands.
var Templates = []string{"simple", "dmz", "cloud", "star", "bus", "mesh", "ring"}

// GeneratedNode is a node as returned by the topology generator.
type GeneratedNode struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Zone     string         `json:"zone,omitempty"`
	Position model.Position `json:"position"`
	Metadata struct {
		IP     string `json:"ip"`
		Subnet string `json:"subnet,omitempty"`
		Model  string `json:"model,omitempty"`
	} `json:"metadata"`
}

// GeneratedLink is a link as returned by the topology generator.
type GeneratedLink struct {
	ID          string `json:"id"`
	Source      string `json:"source_node_id"`
	Destination string `json:"destination_node_id"`
}

// Generated is the generator's response body.
type Generated struct {
	Nodes []GeneratedNode `json:"nodes"`
	Links []GeneratedLink `json:"links"`
}

// FromGenerated converts generator output into model nodes and links.
// "internet" nodes become clouds and unknown types become hosts. Addresses
// given in CIDR form keep only the host part.
func FromGenerated(g Generated) ([]model.Node, []model.Link) {
	nodes := make([]model.Node, 0, len(g.Nodes))
	known := make(map[string]bool, len(g.Nodes))
	for _, gn := range g.Nodes {
		if gn.ID == "" || known[gn.ID] {
			util.Warn("Skipping generated node with empty or duplicate id %q", gn.ID)
			continue
		}
		known[gn.ID] = true

		label := gn.Name
		if label == "" {
			label = gn.ID
		}
		ip, _, _ := strings.Cut(gn.Metadata.IP, "/")
		nodes = append(nodes, model.Node{
			ID:       gn.ID,
			Type:     generatedType(gn.Type),
			Position: gn.Position,
			Data: model.NodeData{
				Label:  label,
				IP:     ip,
				Subnet: gn.Metadata.Subnet,
			},
		})
	}

	rename := renameReserved(nodes, known)

	var links []model.Link
	for i, gl := range g.Links {
		if !known[gl.Source] || !known[gl.Destination] {
			util.Warn("Skipping generated link %q with unknown endpoint", gl.ID)
			continue
		}
		id := gl.ID
		if id == "" {
			id = fmt.Sprintf("edge_%d", i)
		}
		links = append(links, model.Link{ID: id, Source: rename(gl.Source), Target: rename(gl.Destination)})
	}
	return nodes, links
}

// renameReserved gives a generated node called FirewallKey a fresh id
// unless it is the first firewall, and returns the id mapping for links.
func renameReserved(nodes []model.Node, known map[string]bool) func(string) string {
	same := func(id string) string { return id }
	if checkReservedID(nodes) == nil {
		return same
	}

	fresh := FirewallKey + "_node"
	for i := 1; known[fresh]; i++ {
		fresh = fmt.Sprintf("%s_node_%d", FirewallKey, i)
	}
	for i := range nodes {
		if nodes[i].ID == FirewallKey {
			nodes[i].ID = fresh
			util.Warn("Renamed generated %s node %q to %q", nodes[i].Type, FirewallKey, fresh)
		}
	}
	return func(id string) string {
		if id == FirewallKey {
			return fresh
		}
		return id
	}
}

func generatedType(t string) model.NodeType {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "internet" {
		return model.NodeCloud
	}
	nt := model.NodeType(t)
	if nt.Valid() {
		return nt
	}
	return model.NodeHost
}

// ValidTemplate reports whether name is a known generator template.
func ValidTemplate(name string) bool {
	for _, t := range Templates {
		if t == name {
			return true
		}
	}
	return false
}
