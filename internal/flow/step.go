package flow

import (
	"strings"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
)

// MenuKey is the node key the "menu" keyword jumps to from text nodes.
const MenuKey = "menu_principal"

// Result names what a transition did.
type Result string

const (
	ResultReprompt Result = "reprompt"
	ResultAdvance  Result = "advance"
	ResultHandoff  Result = "handoff"
	ResultInvalid  Result = "invalid"
	ResultCaptured Result = "captured"
	ResultMenu     Result = "menu"
	ResultStop     Result = "stop"
)

// Input is what the contact sent this turn.
type Input struct {
	Text    string
	ReplyID string
}

// Outcome is the result of one transition. Node is a render copy and may be nil.
type Outcome struct {
	State  model.BotState
	Node   *model.Node
	Result Result
}

// Step computes the next state and the node to render. It never mutates state
// or the graph, so equal arguments always give equal outcomes.
func Step(g *Graph, state model.BotState, in Input) Outcome {
	next := state.Clone()
	stop := Outcome{State: next, Result: ResultStop}

	current, ok := g.Node(state.NodeID)
	if !ok {
		return stop
	}
	text := strings.TrimSpace(in.Text)

	switch s := current.Settings.(type) {
	case model.ButtonsSettings:
		return stepMenu(g, current, s.Buttons, next, in.ReplyID)
	case model.ListSettings:
		return stepMenu(g, current, s.Rows, next, in.ReplyID)
	case *model.InputSettings:
		return stepInput(g, current, s, next, text)
	case model.TextSettings:
		if isMenuKeyword(text) {
			if menu, ok := g.NodeByKey(MenuKey); ok {
				next.NodeID = menu.ID
				return Outcome{State: next, Node: render(menu), Result: ResultMenu}
			}
		}
		if current.NextNodeID != "" {
			next.NodeID = current.NextNodeID
			return Outcome{State: next, Node: render(current), Result: ResultAdvance}
		}
		return Outcome{State: next, Node: render(current), Result: ResultReprompt}
	case model.HandoffSettings:
		return stop
	}
	return stop
}

func stepMenu(g *Graph, current *model.Node, options []model.Option, state model.BotState, replyID string) Outcome {
	if replyID == "" {
		return Outcome{State: state, Node: render(current), Result: ResultReprompt}
	}

	var chosen *model.Option
	for i := range options {
		if options[i].ID == replyID {
			chosen = &options[i]
			break
		}
	}
	if chosen == nil {
		return Outcome{State: state, Result: ResultStop}
	}
	if chosen.IsEnd() {
		return Outcome{State: state, Node: render(current), Result: ResultReprompt}
	}

	target, ok := g.Resolve(chosen.NodeRef)
	if !ok {
		return Outcome{State: state, Result: ResultStop}
	}

	state.NodeID = target.ID
	if target.Kind == model.NodeHandoff {
		state.Enabled = false
		return Outcome{State: state, Node: render(target), Result: ResultHandoff}
	}
	return Outcome{State: state, Node: render(target), Result: ResultAdvance}
}

func stepInput(g *Graph, current *model.Node, s *model.InputSettings, state model.BotState, text string) Outcome {
	if !s.Accepts(text) {
		prompt := render(current)
		prompt.Body = s.ErrorText()
		return Outcome{State: state, Node: prompt, Result: ResultInvalid}
	}

	if s.Variable != "" {
		state.Vars[s.Variable] = text
	}

	target, ok := g.Resolve(s.NodeRef)
	if !ok {
		return Outcome{State: state, Result: ResultCaptured}
	}

	state.NodeID = target.ID
	out := render(target)
	if s.Variable != "" {
		out.Body = strings.ReplaceAll(out.Body, "{"+s.Variable+"}", text)
	}
	return Outcome{State: state, Node: out, Result: ResultAdvance}
}

func isMenuKeyword(text string) bool {
	t := strings.ToLower(text)
	return t == "menu" || t == "menú"
}

func render(n *model.Node) *model.Node {
	cp := *n
	return &cp
}
