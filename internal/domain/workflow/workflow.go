package workflow

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
)

// StateType is the semantic type of a workflow state.
type StateType string

const (
	StateDraft     StateType = "draft"
	StateReview    StateType = "review"
	StateApproved  StateType = "approved"
	StatePublished StateType = "published"
	StateArchived  StateType = "archived"
	StateRejected  StateType = "rejected"
	StateRevision  StateType = "revision"
)

// Template is a reusable content-approval workflow. Treat values returned
// by Build or a registry as read-only.
type Template struct {
	ID                 string                 `json:"id" yaml:"id" validate:"required"`
	Name               string                 `json:"name" yaml:"name" validate:"required"`
	Description        string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Version            string                 `json:"version" yaml:"version" validate:"required"`
	Category           string                 `json:"category,omitempty" yaml:"category,omitempty"`
	States             []State                `json:"states" yaml:"states" validate:"required,min=1,dive"`
	Transitions        []Transition           `json:"transitions" yaml:"transitions" validate:"dive"`
	DefaultPermissions []Permission           `json:"defaultPermissions,omitempty" yaml:"defaultPermissions,omitempty" validate:"dive"`
	Metadata           map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// State is a stage of the review process.
type State struct {
	ID          string                 `json:"id" yaml:"id" validate:"required"`
	Title       string                 `json:"title" yaml:"title" validate:"required"`
	Type        StateType              `json:"type" yaml:"type" validate:"required,oneof=draft review approved published archived rejected revision"`
	Permissions []Permission           `json:"permissions,omitempty" yaml:"permissions,omitempty" validate:"dive"`
	IsInitial   bool                   `json:"isInitial,omitempty" yaml:"isInitial,omitempty"`
	IsFinal     bool                   `json:"isFinal,omitempty" yaml:"isFinal,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Transition is a permitted move between two states.
type Transition struct {
	ID           string        `json:"id" yaml:"id" validate:"required"`
	Title        string        `json:"title" yaml:"title" validate:"required"`
	From         string        `json:"fromState" yaml:"fromState" validate:"required"`
	To           string        `json:"toState" yaml:"toState" validate:"required"`
	RequiredRole role.Internal `json:"requiredRole" yaml:"requiredRole" validate:"required"`
	Conditions   *Conditions   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Conditions are declarative guards evaluated by the transition executor.
type Conditions struct {
	MinReviewers    int    `json:"minReviewers,omitempty" yaml:"minReviewers,omitempty" validate:"gte=0"`
	RequireComments bool   `json:"requireComments,omitempty" yaml:"requireComments,omitempty"`
	Expression      string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Permission grants a role a set of actions.
type Permission struct {
	Role    role.Internal `json:"role" yaml:"role" validate:"required"`
	Actions []role.Action `json:"actions" yaml:"actions" validate:"required,min=1"`
}

// ParseTemplate decodes a JSON template without validating it.
func ParseTemplate(data json.RawMessage) (*Template, error) {
	if len(data) == 0 {
		return nil, errors.New("template definition is empty")
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Build validates t and returns an independent copy of it.
func Build(t Template) (*Template, error) {
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// InitialState returns the state flagged as initial.
func (t *Template) InitialState() *State {
	for i := range t.States {
		if t.States[i].IsInitial {
			return &t.States[i]
		}
	}
	return nil
}

// State looks up a state by id.
func (t *Template) State(id string) *State {
	for i := range t.States {
		if t.States[i].ID == id {
			return &t.States[i]
		}
	}
	return nil
}

// Transition looks up a transition by id.
func (t *Template) Transition(id string) *Transition {
	for i := range t.Transitions {
		if t.Transitions[i].ID == id {
			return &t.Transitions[i]
		}
	}
	return nil
}

// TransitionsFrom returns the transitions leaving stateID, in declaration order.
func (t *Template) TransitionsFrom(stateID string) []Transition {
	var out []Transition
	for _, tr := range t.Transitions {
		if tr.From == stateID {
			out = append(out, tr)
		}
	}
	return out
}

// Roles returns every internal role referenced by the template, sorted.
func (t *Template) Roles() []role.Internal {
	seen := make(map[role.Internal]struct{})
	for _, s := range t.States {
		for _, p := range s.Permissions {
			seen[p.Role] = struct{}{}
		}
	}
	for _, tr := range t.Transitions {
		seen[tr.RequiredRole] = struct{}{}
	}
	for _, p := range t.DefaultPermissions {
		seen[p.Role] = struct{}{}
	}
	out := make([]role.Internal, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a deep copy. Metadata maps are copied one level deep.
func (t *Template) Clone() *Template {
	c := *t
	c.States = make([]State, len(t.States))
	for i, s := range t.States {
		s.Permissions = clonePermissions(s.Permissions)
		s.Metadata = cloneMap(s.Metadata)
		c.States[i] = s
	}
	c.Transitions = make([]Transition, len(t.Transitions))
	for i, tr := range t.Transitions {
		if tr.Conditions != nil {
			cond := *tr.Conditions
			tr.Conditions = &cond
		}
		c.Transitions[i] = tr
	}
	c.DefaultPermissions = clonePermissions(t.DefaultPermissions)
	c.Metadata = cloneMap(t.Metadata)
	return &c
}

func clonePermissions(in []Permission) []Permission {
	if in == nil {
		return nil
	}
	out := make([]Permission, len(in))
	for i, p := range in {
		out[i] = Permission{Role: p.Role, Actions: append([]role.Action(nil), p.Actions...)}
	}
	return out
}

func cloneMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
