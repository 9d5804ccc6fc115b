// Package flow runs conversations through authored decision graphs.
package flow

import (
	"fmt"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// Graph is a validated, read-only view of one flow and its nodes.
type Graph struct {
	Flow  model.Flow
	nodes map[string]*model.Node
	keys  map[string]*model.Node
	order []string
}

// NewGraph indexes nodes and validates their settings. Nodes without settings
// get the empty settings of their kind when that kind needs none. Input settings
// are copied before compiling, so the caller's nodes are never written.
func NewGraph(flow model.Flow, nodes []model.Node) (*Graph, error) {
	g := &Graph{
		Flow:  flow,
		nodes: make(map[string]*model.Node, len(nodes)),
		keys:  make(map[string]*model.Node),
	}
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("flow %s: node %d has no id", flow.ID, i)
		}
		if !n.Kind.Valid() {
			return nil, fmt.Errorf("flow %s: node %s has unknown type %q", flow.ID, n.ID, n.Kind)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate node id %s", flow.ID, n.ID)
		}
		if n.Settings == nil {
			switch n.Kind {
			case model.NodeText:
				n.Settings = model.TextSettings{}
			case model.NodeHandoff:
				n.Settings = model.HandoffSettings{}
			}
		}
		if in, ok := n.Settings.(*model.InputSettings); ok {
			if in == nil {
				in = &model.InputSettings{}
			}
			n.Settings = in.Clone()
		}
		if err := model.ValidateSettings(n.Kind, n.Settings); err != nil {
			return nil, fmt.Errorf("flow %s: node %s: %w", flow.ID, n.ID, err)
		}
		n.FlowID = flow.ID
		g.nodes[n.ID] = &n
		g.order = append(g.order, n.ID)
		if n.Key != "" {
			if _, seen := g.keys[n.Key]; !seen {
				g.keys[n.Key] = &n
			}
		}
	}
	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*model.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeByKey returns the first node carrying key.
func (g *Graph) NodeByKey(key string) (*model.Node, bool) {
	n, ok := g.keys[key]
	return n, ok
}

// Resolve follows a reference. An explicit node id is never retried by key.
func (g *Graph) Resolve(ref model.NodeRef) (*model.Node, bool) {
	if ref.NodeID != "" {
		return g.Node(ref.NodeID)
	}
	if ref.Key != "" {
		return g.NodeByKey(ref.Key)
	}
	return nil, false
}

// Nodes returns the nodes in authoring order.
func (g *Graph) Nodes() []model.Node {
	out := make([]model.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}
