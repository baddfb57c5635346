package workflow

import "github.com/curriculum-hub/curriculum-hub/internal/domain/role"

// Built-in template ids.
const (
	TemplateSimpleReview       = "simple_review"
	TemplateEditorialReview    = "editorial_review"
	TemplateCurriculumApproval = "curriculum_approval"
)

// Builtins returns fresh, unvalidated copies of the built-in templates.
func Builtins() []Template {
	return []Template{
		SimpleReview(),
		EditorialReview(),
		CurriculumApproval(),
	}
}

func perm(r role.Internal, actions ...role.Action) Permission {
	return Permission{Role: r, Actions: actions}
}

// SimpleReview is a single editor sign-off before publication.
func SimpleReview() Template {
	return Template{
		ID:          TemplateSimpleReview,
		Name:        "Simple Review",
		Description: "Author drafts, an editor approves or sends back, approved content is published.",
		Version:     "1.0.0",
		Category:    "general",
		States: []State{
			{
				ID:        "draft",
				Title:     "Draft",
				Type:      StateDraft,
				IsInitial: true,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionEdit, role.ActionSubmit),
				},
			},
			{
				ID:    "review",
				Title: "In Review",
				Type:  StateReview,
				Permissions: []Permission{
					perm(role.Author, role.ActionView),
					perm(role.Editor, role.ActionView, role.ActionComment, role.ActionApprove, role.ActionReject),
				},
			},
			{
				ID:      "published",
				Title:   "Published",
				Type:    StatePublished,
				IsFinal: true,
				Permissions: []Permission{
					perm(role.Viewer, role.ActionView),
				},
			},
		},
		Transitions: []Transition{
			{ID: "submit", Title: "Submit for review", From: "draft", To: "review", RequiredRole: role.Author},
			{ID: "approve", Title: "Approve and publish", From: "review", To: "published", RequiredRole: role.Editor},
			{ID: "reject", Title: "Send back to author", From: "review", To: "draft", RequiredRole: role.Editor},
		},
		DefaultPermissions: []Permission{
			perm(role.Administrator, role.ActionView, role.ActionEdit, role.ActionManageWorkflow),
		},
	}
}

// EditorialReview adds a revision loop and a separate publishing step.
func EditorialReview() Template {
	return Template{
		ID:          TemplateEditorialReview,
		Name:        "Editorial Review",
		Description: "Editorial review with revision requests, approval and a publisher release step.",
		Version:     "1.2.0",
		Category:    "editorial",
		States: []State{
			{
				ID:        "draft",
				Title:     "Draft",
				Type:      StateDraft,
				IsInitial: true,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionEdit, role.ActionSubmit),
					perm(role.Contributor, role.ActionView, role.ActionComment),
				},
			},
			{
				ID:    "pending_review",
				Title: "Pending Review",
				Type:  StateReview,
				Permissions: []Permission{
					perm(role.Author, role.ActionView),
					perm(role.Editor, role.ActionView, role.ActionEdit, role.ActionComment, role.ActionReview, role.ActionApprove, role.ActionReject),
				},
			},
			{
				ID:    "revision",
				Title: "Needs Revision",
				Type:  StateRevision,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionEdit, role.ActionSubmit),
					perm(role.Editor, role.ActionView, role.ActionComment),
				},
			},
			{
				ID:    "approved",
				Title: "Approved",
				Type:  StateApproved,
				Permissions: []Permission{
					perm(role.Editor, role.ActionView),
					perm(role.Publisher, role.ActionView, role.ActionPublish, role.ActionRetract),
				},
			},
			{
				ID:      "published",
				Title:   "Published",
				Type:    StatePublished,
				IsFinal: true,
				Permissions: []Permission{
					perm(role.Viewer, role.ActionView),
				},
			},
			{
				ID:      "rejected",
				Title:   "Rejected",
				Type:    StateRejected,
				IsFinal: true,
			},
		},
		Transitions: []Transition{
			{ID: "submit", Title: "Submit for review", From: "draft", To: "pending_review", RequiredRole: role.Author},
			{ID: "request_revision", Title: "Request revision", From: "pending_review", To: "revision", RequiredRole: role.Editor,
				Conditions: &Conditions{RequireComments: true}},
			{ID: "resubmit", Title: "Resubmit", From: "revision", To: "pending_review", RequiredRole: role.Author},
			{ID: "approve", Title: "Approve", From: "pending_review", To: "approved", RequiredRole: role.Editor},
			{ID: "reject", Title: "Reject", From: "pending_review", To: "rejected", RequiredRole: role.Editor,
				Conditions: &Conditions{RequireComments: true}},
			{ID: "publish", Title: "Publish", From: "approved", To: "published", RequiredRole: role.Publisher},
			{ID: "retract", Title: "Retract approval", From: "approved", To: "pending_review", RequiredRole: role.Publisher},
		},
		DefaultPermissions: []Permission{
			perm(role.Administrator, role.ActionView, role.ActionEdit, role.ActionManageWorkflow),
			perm(role.Publisher, role.ActionView),
		},
	}
}

// CurriculumApproval requires peer review by several reviewers and a
// committee decision before a unit is released to learners.
func CurriculumApproval() Template {
	return Template{
		ID:          TemplateCurriculumApproval,
		Name:        "Curriculum Approval",
		Description: "Peer review by subject experts followed by committee approval and publication.",
		Version:     "2.0.0",
		Category:    "curriculum",
		States: []State{
			{
				ID:        "draft",
				Title:     "Draft",
				Type:      StateDraft,
				IsInitial: true,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionEdit, role.ActionSubmit),
					perm(role.Contributor, role.ActionView, role.ActionEdit, role.ActionComment),
				},
			},
			{
				ID:    "peer_review",
				Title: "Peer Review",
				Type:  StateReview,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionComment),
					perm(role.Reviewer, role.ActionView, role.ActionComment, role.ActionReview, role.ActionApprove, role.ActionReject),
				},
			},
			{
				ID:    "revision",
				Title: "Revision",
				Type:  StateRevision,
				Permissions: []Permission{
					perm(role.Author, role.ActionView, role.ActionEdit, role.ActionSubmit),
					perm(role.Reviewer, role.ActionView, role.ActionComment),
				},
			},
			{
				ID:    "committee_review",
				Title: "Committee Review",
				Type:  StateReview,
				Permissions: []Permission{
					perm(role.Reviewer, role.ActionView),
					perm(role.Publisher, role.ActionView, role.ActionComment, role.ActionApprove, role.ActionReject),
				},
			},
			{
				ID:    "approved",
				Title: "Approved",
				Type:  StateApproved,
				Permissions: []Permission{
					perm(role.Publisher, role.ActionView, role.ActionPublish),
				},
			},
			{
				ID:      "published",
				Title:   "Published",
				Type:    StatePublished,
				IsFinal: true,
				Permissions: []Permission{
					perm(role.Viewer, role.ActionView),
				},
			},
			{
				ID:      "archived",
				Title:   "Archived",
				Type:    StateArchived,
				IsFinal: true,
			},
		},
		Transitions: []Transition{
			{ID: "submit", Title: "Submit for peer review", From: "draft", To: "peer_review", RequiredRole: role.Author},
			{ID: "request_revision", Title: "Request revision", From: "peer_review", To: "revision", RequiredRole: role.Reviewer,
				Conditions: &Conditions{RequireComments: true}},
			{ID: "resubmit", Title: "Resubmit", From: "revision", To: "peer_review", RequiredRole: role.Author},
			{ID: "endorse", Title: "Endorse for committee", From: "peer_review", To: "committee_review", RequiredRole: role.Reviewer,
				Conditions: &Conditions{MinReviewers: 2, Expression: "reviewer_count >= 2 && comments_length > 0"}},
			{ID: "approve", Title: "Committee approval", From: "committee_review", To: "approved", RequiredRole: role.Publisher},
			{ID: "return", Title: "Return to peer review", From: "committee_review", To: "peer_review", RequiredRole: role.Publisher},
			{ID: "publish", Title: "Publish", From: "approved", To: "published", RequiredRole: role.Publisher},
			{ID: "archive", Title: "Archive", From: "approved", To: "archived", RequiredRole: role.Administrator},
		},
		DefaultPermissions: []Permission{
			perm(role.Administrator, role.ActionView, role.ActionEdit, role.ActionDelete, role.ActionManageWorkflow),
		},
		Metadata: map[string]interface{}{
			"audience": "curriculum committee",
		},
	}
}
