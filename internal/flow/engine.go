package flow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/internal/model"
	"github.com/capitalize-ai/messaging-gateway/internal/store"
	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

// Repository is the storage the engine reads flows from and writes bot state to.
type Repository interface {
	store.ConversationRepository
	store.FlowRepository
}

// Turn is the engine's answer for one inbound message.
type Turn struct {
	Conversation *model.Conversation
	Node         *model.Node
	Result       Result
}

// Engine advances conversations through their active flow. Turns for the same
// conversation are serialized.
type Engine struct {
	repo   Repository
	locker *Locker
	logger *logger.Logger
}

// NewEngine creates a flow engine.
func NewEngine(repo Repository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, locker: NewLocker(), logger: log}
}

// Handle runs one turn for the conversation. A nil Node means nothing is sent.
func (e *Engine) Handle(ctx context.Context, conversationID string, in Input) (*Turn, error) {
	unlock := e.locker.Lock(conversationID)
	defer unlock()

	conv, err := e.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	turn := &Turn{Conversation: conv, Result: ResultStop}
	if !conv.Bot.Enabled {
		return turn, nil
	}

	state := conv.Bot.Clone()
	if !state.HasPointer() {
		state, err = e.start(ctx, conv.ID, state)
		if err != nil {
			return nil, err
		}
		conv.Bot = state
		if !state.HasPointer() {
			return turn, nil
		}
	}

	graph, err := e.Graph(ctx, state.FlowID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("active flow not found", zap.String("flow_id", state.FlowID),
			zap.String("conversation_id", conv.ID))
		return turn, nil
	}
	if err != nil {
		return nil, err
	}

	kind := "missing"
	if n, ok := graph.Node(state.NodeID); ok {
		kind = string(n.Kind)
	}

	out := Step(graph, state, in)
	metrics.FlowTransitions.WithLabelValues(kind, string(out.Result)).Inc()

	if !out.State.Equal(state) {
		if err := e.repo.SaveBotState(ctx, conv.ID, out.State); err != nil {
			return nil, fmt.Errorf("failed to save bot state: %w", err)
		}
		conv.Bot = out.State
	}

	e.logger.Debug("flow transition",
		zap.String("conversation_id", conv.ID),
		zap.String("from_node", state.NodeID),
		zap.String("to_node", out.State.NodeID),
		zap.String("result", string(out.Result)),
	)

	turn.Node = out.Node
	turn.Result = out.Result
	return turn, nil
}

// Graph loads and validates a flow.
func (e *Engine) Graph(ctx context.Context, flowID string) (*Graph, error) {
	flow, err := e.repo.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	nodes, err := e.repo.ListNodes(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	return NewGraph(*flow, nodes)
}

// start points the conversation at the first active flow's start node.
func (e *Engine) start(ctx context.Context, conversationID string, state model.BotState) (model.BotState, error) {
	flow, err := e.repo.FirstActiveFlow(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to load active flow: %w", err)
	}

	state.FlowID = flow.ID
	state.NodeID = flow.StartNodeID
	state.Enabled = true
	if state.Vars == nil {
		state.Vars = map[string]string{}
	}
	if err := e.repo.SaveBotState(ctx, conversationID, state); err != nil {
		return state, fmt.Errorf("failed to start flow: %w", err)
	}
	e.logger.Info("conversation entered flow",
		zap.String("conversation_id", conversationID),
		zap.String("flow_id", flow.ID),
		zap.String("node_id", flow.StartNodeID),
	)
	return state, nil
}

// SetEnabled turns automated handling on or off. It takes the conversation's turn
// lock, so a toggle never interleaves with a transition that would overwrite it.
func (e *Engine) SetEnabled(ctx context.Context, conversationID string, enabled bool) (*model.Conversation, error) {
	unlock := e.locker.Lock(conversationID)
	defer unlock()

	return e.repo.SetBotEnabled(ctx, conversationID, enabled)
}
