package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvalidWorkflowError lists every structural violation found in a template.
type InvalidWorkflowError struct {
	TemplateID string
	Violations []string
}

func (e *InvalidWorkflowError) Error() string {
	id := e.TemplateID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("invalid workflow template %s: %s", id, strings.Join(e.Violations, "; "))
}

// Validate checks field constraints and the structural invariants: exactly
// one initial state, at least one final state, transitions reference
// existing states, final states have no outgoing transitions, and every
// non-final state is reachable from the initial state.
func Validate(t *Template) error {
	if t == nil {
		return &InvalidWorkflowError{Violations: []string{"template is nil"}}
	}
	var violations []string

	if err := validate.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				violations = append(violations, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			violations = append(violations, err.Error())
		}
	}

	states := make(map[string]*State, len(t.States))
	for i := range t.States {
		s := &t.States[i]
		if s.ID == "" {
			continue
		}
		if _, dup := states[s.ID]; dup {
			violations = append(violations, "duplicate state id: "+s.ID)
			continue
		}
		states[s.ID] = s
	}
	seenTransitions := make(map[string]struct{}, len(t.Transitions))
	for _, tr := range t.Transitions {
		if tr.ID == "" {
			continue
		}
		if _, dup := seenTransitions[tr.ID]; dup {
			violations = append(violations, "duplicate transition id: "+tr.ID)
		}
		seenTransitions[tr.ID] = struct{}{}
	}

	var initial []string
	finals := 0
	for _, s := range t.States {
		if s.IsInitial {
			initial = append(initial, s.ID)
		}
		if s.IsFinal {
			finals++
		}
	}
	switch len(initial) {
	case 0:
		violations = append(violations, "no initial state")
	case 1:
	default:
		violations = append(violations, "multiple initial states: "+strings.Join(initial, ", "))
	}
	if finals == 0 {
		violations = append(violations, "no final state")
	}

	adjacency := make(map[string][]string)
	for _, tr := range t.Transitions {
		from, okFrom := states[tr.From]
		_, okTo := states[tr.To]
		if !okFrom {
			violations = append(violations, fmt.Sprintf("transition %s references unknown from_state %q", tr.ID, tr.From))
		}
		if !okTo {
			violations = append(violations, fmt.Sprintf("transition %s references unknown to_state %q", tr.ID, tr.To))
		}
		if okFrom && from.IsFinal {
			violations = append(violations, fmt.Sprintf("transition %s leaves final state %s", tr.ID, tr.From))
		}
		if okFrom && okTo {
			adjacency[tr.From] = append(adjacency[tr.From], tr.To)
		}
		if tr.Conditions != nil && strings.TrimSpace(tr.Conditions.Expression) != "" {
			if _, err := govaluate.NewEvaluableExpression(tr.Conditions.Expression); err != nil {
				violations = append(violations, fmt.Sprintf("transition %s has invalid condition expression: %v", tr.ID, err))
			}
		}
	}

	if len(initial) == 1 {
		reached := reachable(initial[0], adjacency)
		var unreachable []string
		for id, s := range states {
			if s.IsFinal {
				continue
			}
			if _, ok := reached[id]; !ok {
				unreachable = append(unreachable, id)
			}
		}
		if len(unreachable) > 0 {
			sort.Strings(unreachable)
			violations = append(violations, "unreachable states: {"+strings.Join(unreachable, ", ")+"}")
		}
	}

	if len(violations) > 0 {
		return &InvalidWorkflowError{TemplateID: t.ID, Violations: violations}
	}
	return nil
}

// reachable runs a breadth-first search from start.
func reachable(start string, adjacency map[string][]string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return seen
}
