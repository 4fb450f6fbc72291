package topology

import (
	"github.com/user/hsafe/internal/model"
)

// FindPath returns a shortest hop sequence from source to target, both ends
// included, treating every link as undirected. It returns nil when the ids
// are equal, either is missing, or target is unreachable.
//
// When several shortest paths exist the one returned follows link insertion
// order: neighbours are explored in the order their links were added.
func FindPath(nodes []model.Node, edges []model.Link, source, target string) []string {
	if source == target {
		return nil
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	if !known[source] || !known[target] {
		return nil
	}

	adj := Adjacency(nodes, edges)

	parent := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur == target {
			return walkBack(parent, target)
		}
		for _, next := range adj[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return nil
}

// Adjacency builds the undirected neighbour lists, skipping links whose
// endpoints are not in nodes.
func Adjacency(nodes []model.Node, edges []model.Link) map[string][]string {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	return adj
}

func walkBack(parent map[string]string, target string) []string {
	var path []string
	for cur := target; cur != ""; cur = parent[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
