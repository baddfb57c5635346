package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

func TestEvaluateCondition(t *testing.T) {
	params := map[string]interface{}{
		"reviewer_count":  float64(2),
		"comments_length": float64(0),
		"current_state":   "peer_review",
	}

	tests := []struct {
		name      string
		condition string
		want      bool
		wantErr   bool
	}{
		{name: "empty", condition: "", want: true},
		{name: "literal true", condition: "TRUE", want: true},
		{name: "literal false", condition: "false", want: false},
		{name: "numeric comparison", condition: "reviewer_count >= 2", want: true},
		{name: "string comparison", condition: "current_state == 'draft'", want: false},
		{name: "conjunction", condition: "reviewer_count >= 2 && comments_length > 0", want: false},
		{name: "not boolean", condition: "reviewer_count + 1", wantErr: true},
		{name: "syntax error", condition: "reviewer_count >= (", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.condition, params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckConditions(t *testing.T) {
	assert.NoError(t, CheckConditions(nil, ConditionContext{}))

	err := CheckConditions(&workflow.Conditions{RequireComments: true}, ConditionContext{Comments: "   "})
	assert.EqualError(t, err, "comments are required")

	err = CheckConditions(&workflow.Conditions{MinReviewers: 2}, ConditionContext{ReviewerCount: 1})
	assert.EqualError(t, err, "at least 2 reviewers are required, 1 assigned")

	err = CheckConditions(&workflow.Conditions{Expression: "user_role_count > 1"}, ConditionContext{UserRoleCount: 1})
	assert.EqualError(t, err, `condition "user_role_count > 1" not met`)

	assert.NoError(t, CheckConditions(&workflow.Conditions{
		RequireComments: true,
		MinReviewers:    2,
		Expression:      "reviewer_count >= 2 && comments_length > 0",
	}, ConditionContext{Comments: "looks good", ReviewerCount: 2}))
}
