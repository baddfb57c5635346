package role

import "sort"

// Internal is a role in the engine's own vocabulary.
type Internal string

const (
	Author        Internal = "author"
	Contributor   Internal = "contributor"
	Reviewer      Internal = "reviewer"
	Editor        Internal = "editor"
	Publisher     Internal = "publisher"
	Administrator Internal = "administrator"
	Viewer        Internal = "viewer"
)

// Action is something a role may do to content in a given state.
type Action string

const (
	ActionView           Action = "view"
	ActionEdit           Action = "edit"
	ActionComment        Action = "comment"
	ActionSubmit         Action = "submit"
	ActionReview         Action = "review"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionPublish        Action = "publish"
	ActionRetract        Action = "retract"
	ActionArchive        Action = "archive"
	ActionDelete         Action = "delete"
	ActionManageWorkflow Action = "manage_workflow"
)

// External role names understood by the content system.
const (
	ExternalManager           = "Manager"
	ExternalSiteAdministrator = "Site Administrator"
	ExternalReviewer          = "Reviewer"
	ExternalEditor            = "Editor"
	ExternalOwner             = "Owner"
	ExternalContributor       = "Contributor"
	ExternalReader            = "Reader"
)

// Mapping associates an internal role with its external counterpart.
type Mapping struct {
	Internal       Internal `json:"internal"`
	External       string   `json:"external"`
	DefaultActions []Action `json:"defaultActions"`
	Privileged     bool     `json:"privileged"`
	Description    string   `json:"description,omitempty"`
}

// Mappings is the fixed role table.
var Mappings = []Mapping{
	{
		Internal:       Author,
		External:       ExternalOwner,
		DefaultActions: []Action{ActionView, ActionEdit, ActionComment, ActionSubmit},
		Description:    "Creates and revises course material",
	},
	{
		Internal:       Contributor,
		External:       ExternalContributor,
		DefaultActions: []Action{ActionView, ActionComment, ActionSubmit},
		Description:    "Adds supporting material to content owned by others",
	},
	{
		Internal:       Reviewer,
		External:       ExternalReviewer,
		DefaultActions: []Action{ActionView, ActionComment, ActionReview, ActionApprove, ActionReject},
		Description:    "Subject-matter or peer reviewer",
	},
	{
		Internal:       Editor,
		External:       ExternalEditor,
		DefaultActions: []Action{ActionView, ActionEdit, ActionComment, ActionReview, ActionApprove, ActionReject},
		Description:    "Editorial review and copy editing",
	},
	{
		Internal:       Publisher,
		External:       ExternalSiteAdministrator,
		DefaultActions: []Action{ActionView, ActionEdit, ActionComment, ActionApprove, ActionReject, ActionPublish, ActionRetract, ActionArchive, ActionManageWorkflow},
		Privileged:     true,
		Description:    "Publishes to learners and manages workflows",
	},
	{
		Internal:       Administrator,
		External:       ExternalManager,
		DefaultActions: []Action{ActionView, ActionEdit, ActionComment, ActionSubmit, ActionReview, ActionApprove, ActionReject, ActionPublish, ActionRetract, ActionArchive, ActionDelete, ActionManageWorkflow},
		Privileged:     true,
		Description:    "Full control of the site",
	},
	{
		Internal:       Viewer,
		External:       ExternalReader,
		DefaultActions: []Action{ActionView},
		Description:    "Read-only access",
	},
}

// Permissions maps actions to the content system's permission names.
var Permissions = map[Action]string{
	ActionView:           "View",
	ActionEdit:           "Modify portal content",
	ActionComment:        "Reply to item",
	ActionSubmit:         "Request review",
	ActionReview:         "Review portal content",
	ActionApprove:        "Approve content",
	ActionReject:         "Reject content",
	ActionPublish:        "Publish content",
	ActionRetract:        "Retract content",
	ActionArchive:        "Archive content",
	ActionDelete:         "Delete objects",
	ActionManageWorkflow: "Manage workflow",
}

// Hierarchy scores external roles by privilege.
var Hierarchy = map[string]int{
	ExternalManager:           100,
	ExternalSiteAdministrator: 80,
	ExternalReviewer:          60,
	ExternalEditor:            50,
	ExternalOwner:             40,
	ExternalContributor:       30,
	ExternalReader:            10,
}

// SortActions sorts actions in place and returns them.
func SortActions(actions []Action) []Action {
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
