package transition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// ConditionContext is the data a transition guard may inspect.
type ConditionContext struct {
	Comments        string
	ReviewerCount   int
	CurrentState    string
	UserID          string
	UserRoleCount   int
	TemplateID      string
	TemplateVersion string
}

func (c ConditionContext) params() map[string]interface{} {
	return map[string]interface{}{
		"comments":         c.Comments,
		"comments_length":  float64(len(strings.TrimSpace(c.Comments))),
		"reviewer_count":   float64(c.ReviewerCount),
		"current_state":    c.CurrentState,
		"user_id":          c.UserID,
		"user_role_count":  float64(c.UserRoleCount),
		"template_id":      c.TemplateID,
		"template_version": c.TemplateVersion,
	}
}

// CheckConditions returns a descriptive error for the first unmet condition.
func CheckConditions(cond *workflow.Conditions, cc ConditionContext) error {
	if cond == nil {
		return nil
	}
	if cond.RequireComments && strings.TrimSpace(cc.Comments) == "" {
		return errors.New("comments are required")
	}
	if cond.MinReviewers > 0 && cc.ReviewerCount < cond.MinReviewers {
		return fmt.Errorf("at least %d reviewers are required, %d assigned", cond.MinReviewers, cc.ReviewerCount)
	}
	ok, err := EvaluateCondition(cond.Expression, cc.params())
	if err != nil {
		return fmt.Errorf("condition %q could not be evaluated: %w", cond.Expression, err)
	}
	if !ok {
		return fmt.Errorf("condition %q not met", cond.Expression)
	}
	return nil
}

// EvaluateCondition evaluates a condition expression against params.
// Empty condition returns true. Supports "true"/"false" literals.
func EvaluateCondition(condition string, params map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("condition did not evaluate to boolean")
	}
}
