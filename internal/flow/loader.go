package flow

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
)

// Definition is a flow with its nodes, ready to be stored.
type Definition struct {
	Flow  model.Flow
	Nodes []model.Node
}

type seedFile struct {
	Flows []seedFlow `yaml:"flows"`
}

type seedFlow struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Active      *bool      `yaml:"active"`
	StartNodeID string     `yaml:"start_node_id"`
	Nodes       []seedNode `yaml:"nodes"`
}

type seedNode struct {
	ID         string    `yaml:"id"`
	Key        string    `yaml:"key"`
	Type       string    `yaml:"type"`
	Body       string    `yaml:"body"`
	NextNodeID string    `yaml:"next_node_id"`
	Settings   yaml.Node `yaml:"settings"`
}

// LoadFile reads flow definitions from a YAML file.
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flows file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates flow definitions. Option and next-node targets
// are not checked; a reference to a missing node ends the flow at runtime.
func Load(r io.Reader) ([]Definition, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode flows: %w", err)
	}

	defs := make([]Definition, 0, len(file.Flows))
	for _, sf := range file.Flows {
		if sf.ID == "" || sf.Name == "" {
			return nil, fmt.Errorf("flow requires id and name")
		}
		flow := model.Flow{
			ID:          sf.ID,
			Name:        sf.Name,
			Description: sf.Description,
			Active:      sf.Active == nil || *sf.Active,
			StartNodeID: sf.StartNodeID,
		}

		nodes := make([]model.Node, 0, len(sf.Nodes))
		for _, sn := range sf.Nodes {
			kind := model.NodeKind(sn.Type)
			if sn.Type == "" {
				kind = model.NodeText
			}
			settings, err := decodeSeedSettings(kind, &sn.Settings)
			if err != nil {
				return nil, fmt.Errorf("flow %s: node %s: %w", sf.ID, sn.ID, err)
			}
			nodes = append(nodes, model.Node{
				ID:         sn.ID,
				FlowID:     sf.ID,
				Key:        sn.Key,
				Kind:       kind,
				Body:       sn.Body,
				Settings:   settings,
				NextNodeID: sn.NextNodeID,
			})
		}

		g, err := NewGraph(flow, nodes)
		if err != nil {
			return nil, err
		}
		if flow.StartNodeID != "" {
			if _, ok := g.Node(flow.StartNodeID); !ok {
				return nil, fmt.Errorf("flow %s: start node %s not found", flow.ID, flow.StartNodeID)
			}
		}
		defs = append(defs, Definition{Flow: flow, Nodes: g.Nodes()})
	}
	return defs, nil
}

// Seed stores every definition, replacing flows with the same id.
func Seed(ctx context.Context, w store.FlowWriter, defs []Definition) error {
	for _, d := range defs {
		if err := w.SaveFlow(ctx, d.Flow, d.Nodes); err != nil {
			return fmt.Errorf("failed to seed flow %s: %w", d.Flow.ID, err)
		}
	}
	return nil
}

func decodeSeedSettings(kind model.NodeKind, raw *yaml.Node) (model.NodeSettings, error) {
	empty := raw.Kind == 0
	switch kind {
	case model.NodeText:
		return model.TextSettings{}, nil
	case model.NodeHandoff:
		return model.HandoffSettings{}, nil
	case model.NodeButtons:
		var s model.ButtonsSettings
		if !empty {
			if err := raw.Decode(&s); err != nil {
				return nil, err
			}
		}
		return s, nil
	case model.NodeList:
		var s model.ListSettings
		if !empty {
			if err := raw.Decode(&s); err != nil {
				return nil, err
			}
		}
		return s, nil
	case model.NodeInput:
		s := &model.InputSettings{}
		if !empty {
			if err := raw.Decode(s); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown node type %q", kind)
}
