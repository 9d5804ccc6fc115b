package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// NodeKind is the kind of a flow node.
type NodeKind string

const (
	NodeText    NodeKind = "text"
	NodeButtons NodeKind = "buttons"
	NodeList    NodeKind = "list"
	NodeInput   NodeKind = "input"
	NodeHandoff NodeKind = "handoff"
)

// Valid reports whether k is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeText, NodeButtons, NodeList, NodeInput, NodeHandoff:
		return true
	}
	return false
}

const (
	DefaultListButtonText   = "Ver opciones"
	DefaultListSectionTitle = "Opciones"
	DefaultInputError       = "Valor inválido, intentá de nuevo."
)

// Flow is an authored decision graph.
type Flow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"is_active"`
	StartNodeID string    `json:"start_node_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Node is a single step of a flow.
type Node struct {
	ID         string       `json:"id"`
	FlowID     string       `json:"flow_id"`
	Key        string       `json:"key,omitempty"`
	Kind       NodeKind     `json:"type"`
	Body       string       `json:"body"`
	Settings   NodeSettings `json:"settings"`
	NextNodeID string       `json:"next_node_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NodeRef points at another node of the same flow. An explicit node id wins over the
// legacy key reference; a zero NodeRef means end of flow.
type NodeRef struct {
	NodeID string `json:"next_node_id,omitempty" yaml:"next_node_id,omitempty"`
	Key    string `json:"next_key,omitempty" yaml:"next_key,omitempty"`
}

// IsEnd reports whether the reference marks the end of the flow.
func (r NodeRef) IsEnd() bool {
	return r.NodeID == "" && r.Key == ""
}

// Option is a selectable button or list row.
type Option struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	NodeRef     `yaml:",inline"`
}

// NodeSettings holds the kind-specific configuration of a node. The set of
// implementations is closed to this package.
type NodeSettings interface {
	Kind() NodeKind
	sealed()
}

// TextSettings configures a text node. Text nodes advance through Node.NextNodeID.
type TextSettings struct{}

// ButtonsSettings configures a reply-button menu.
type ButtonsSettings struct {
	Buttons []Option `json:"buttons" yaml:"buttons"`
}

// ListSettings configures a list menu.
type ListSettings struct {
	ButtonText   string   `json:"button_text,omitempty" yaml:"button_text,omitempty"`
	SectionTitle string   `json:"section_title,omitempty" yaml:"section_title,omitempty"`
	Rows         []Option `json:"rows" yaml:"rows"`
}

// InputSettings configures a free-text capture step.
type InputSettings struct {
	Variable        string `json:"variable,omitempty" yaml:"variable,omitempty"`
	ValidationRegex string `json:"validation_regex,omitempty" yaml:"validation_regex,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	NodeRef         `yaml:",inline"`

	pattern *regexp.Regexp
}

// HandoffSettings configures a handoff node.
type HandoffSettings struct{}

func (TextSettings) Kind() NodeKind    { return NodeText }
func (ButtonsSettings) Kind() NodeKind { return NodeButtons }
func (ListSettings) Kind() NodeKind    { return NodeList }
func (*InputSettings) Kind() NodeKind  { return NodeInput }
func (HandoffSettings) Kind() NodeKind { return NodeHandoff }
func (TextSettings) sealed()           {}
func (ButtonsSettings) sealed()        {}
func (ListSettings) sealed()           {}
func (*InputSettings) sealed()         {}
func (HandoffSettings) sealed()        {}

// Clone returns an uncompiled copy. Settings shared between graphs must not be
// compiled in place.
func (s *InputSettings) Clone() *InputSettings {
	return &InputSettings{
		Variable:        s.Variable,
		ValidationRegex: s.ValidationRegex,
		ErrorMessage:    s.ErrorMessage,
		NodeRef:         s.NodeRef,
	}
}

// Compile validates the capture pattern.
func (s *InputSettings) Compile() error {
	if s.ValidationRegex == "" {
		s.pattern = nil
		return nil
	}
	re, err := regexp.Compile(s.ValidationRegex)
	if err != nil {
		return fmt.Errorf("invalid validation_regex %q: %w", s.ValidationRegex, err)
	}
	s.pattern = re
	return nil
}

// Accepts reports whether text passes the validation pattern. Compile must have been
// called for a pattern to apply.
func (s *InputSettings) Accepts(text string) bool {
	if s.pattern == nil {
		return true
	}
	return s.pattern.MatchString(text)
}

// ErrorText returns the configured error message or the default one.
func (s *InputSettings) ErrorText() string {
	if s.ErrorMessage == "" {
		return DefaultInputError
	}
	return s.ErrorMessage
}

// Label returns the list menu button label.
func (s ListSettings) Label() string {
	if s.ButtonText == "" {
		return DefaultListButtonText
	}
	return s.ButtonText
}

// Section returns the list section title.
func (s ListSettings) Section() string {
	if s.SectionTitle == "" {
		return DefaultListSectionTitle
	}
	return s.SectionTitle
}

// Options returns the selectable options of a menu node, or nil for other kinds.
func (n *Node) Options() []Option {
	switch s := n.Settings.(type) {
	case ButtonsSettings:
		return s.Buttons
	case ListSettings:
		return s.Rows
	}
	return nil
}

// DecodeSettings parses raw settings for a node of the given kind and validates them.
func DecodeSettings(kind NodeKind, raw []byte) (NodeSettings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	switch kind {
	case NodeText:
		return TextSettings{}, nil
	case NodeHandoff:
		return HandoffSettings{}, nil
	case NodeButtons:
		var s ButtonsSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode buttons settings: %w", err)
		}
		return s, validateOptions(s.Buttons)
	case NodeList:
		var s ListSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode list settings: %w", err)
		}
		return s, validateOptions(s.Rows)
	case NodeInput:
		s := &InputSettings{}
		if err := json.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("decode input settings: %w", err)
		}
		if err := s.Compile(); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown node kind %q", kind)
}

// ValidateSettings checks that s belongs to kind and that its options are well formed.
// Input patterns are compiled as a side effect.
func ValidateSettings(kind NodeKind, s NodeSettings) error {
	if s == nil {
		return fmt.Errorf("%s node has no settings", kind)
	}
	if s.Kind() != kind {
		return fmt.Errorf("%s settings on %s node", s.Kind(), kind)
	}
	switch v := s.(type) {
	case ButtonsSettings:
		return validateOptions(v.Buttons)
	case ListSettings:
		return validateOptions(v.Rows)
	case *InputSettings:
		return v.Compile()
	}
	return nil
}

// EncodeSettings serializes node settings for storage.
func EncodeSettings(s NodeSettings) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

func validateOptions(opts []Option) error {
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if o.ID == "" {
			return fmt.Errorf("option %q has no id", o.Title)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("duplicate option id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}
