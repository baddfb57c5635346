package content

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_content.go -package=mocks . System

import (
	"context"
	"encoding/json"
	"time"
)

// MetadataKey is the content metadata key holding the applied template record.
const MetadataKey = "workflow_template"

// MaxHistory bounds the engine-side transition history kept on a content item.
const MaxHistory = 100

// Summary is the content system's view of a content item.
type Summary struct {
	UID         string                     `json:"uid"`
	Title       string                     `json:"title"`
	PortalType  string                     `json:"portalType,omitempty"`
	Path        string                     `json:"path,omitempty"`
	ReviewState string                     `json:"reviewState,omitempty"`
	Metadata    map[string]json.RawMessage `json:"metadata,omitempty"`
}

// TemplateMetadata decodes the applied template record, if any.
func (s *Summary) TemplateMetadata() (*TemplateMetadata, error) {
	raw, ok := s.Metadata[MetadataKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var meta TemplateMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// TransitionInfo is a transition the content system currently offers.
type TransitionInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// HistoryEntry is one recorded workflow event.
type HistoryEntry struct {
	Action    string    `json:"action"`
	FromState string    `json:"fromState,omitempty"`
	ToState   string    `json:"toState"`
	Actor     string    `json:"actor,omitempty"`
	Comments  string    `json:"comments,omitempty"`
	Time      time.Time `json:"time"`
}

// WorkflowInfo is the workflow currently attached to a content item.
type WorkflowInfo struct {
	State       string           `json:"state"`
	WorkflowID  string           `json:"workflowId"`
	Transitions []TransitionInfo `json:"transitions"`
	History     []HistoryEntry   `json:"history"`
}

// WorkflowDefinition is a workflow in the content system's native shape.
type WorkflowDefinition struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description,omitempty"`
	InitialState string                 `json:"initialState"`
	States       []StateDefinition      `json:"states"`
	Transitions  []TransitionDefinition `json:"transitions"`
}

// StateDefinition maps external permission names to the external roles granted it.
type StateDefinition struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Type        string              `json:"type"`
	Transitions []string            `json:"transitions"`
	Permissions map[string][]string `json:"permissions"`
}

// TransitionDefinition gates a transition on external roles.
type TransitionDefinition struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	From       string   `json:"fromState"`
	To         string   `json:"toState"`
	GuardRoles []string `json:"guardRoles"`
}

// BackupInfo is the workflow attachment captured before a template is applied.
type BackupInfo struct {
	OriginalWorkflowID string         `json:"originalWorkflowId"`
	OriginalState      string         `json:"originalState"`
	History            []HistoryEntry `json:"history,omitempty"`
}

// TemplateMetadata is stored on a content item under MetadataKey.
type TemplateMetadata struct {
	TemplateID      string              `json:"templateId"`
	TemplateVersion string              `json:"templateVersion"`
	RoleAssignments map[string][]string `json:"roleAssignments"`
	WorkflowID      string              `json:"workflowId"`
	AppliedAt       time.Time           `json:"appliedAt"`
	AppliedBy       string              `json:"appliedBy,omitempty"`
	BackupInfo      *BackupInfo         `json:"backupInfo,omitempty"`
	History         []HistoryEntry      `json:"history,omitempty"`
}

// AppendHistory adds e and drops the oldest entries beyond MaxHistory.
func (m *TemplateMetadata) AppendHistory(e HistoryEntry) {
	m.History = append(m.History, e)
	if over := len(m.History) - MaxHistory; over > 0 {
		m.History = append([]HistoryEntry(nil), m.History[over:]...)
	}
}

// TransitionOutcome is returned by the content system after a transition.
type TransitionOutcome struct {
	NewState     string       `json:"newState"`
	HistoryEntry HistoryEntry `json:"historyEntry"`
}

// System is the external content-management system. Every call may block on
// network I/O and must honour ctx cancellation.
type System interface {
	// GetContentByUID returns nil, nil when the item does not exist.
	GetContentByUID(ctx context.Context, uid string) (*Summary, error)
	GetWorkflowInfo(ctx context.Context, uid string) (*WorkflowInfo, error)
	CreateWorkflow(ctx context.Context, workflowID string, def *WorkflowDefinition) error
	DeleteWorkflow(ctx context.Context, workflowID string) error
	// AssignWorkflowToContent attaches workflowID; an empty id detaches.
	AssignWorkflowToContent(ctx context.Context, uid, workflowID string) error
	SetWorkflowState(ctx context.Context, uid, stateID string) error
	AssignLocalRoles(ctx context.Context, uid, externalRole string, userIDs []string) error
	// UpdateContentMetadata merges patch; a nil value deletes the key.
	UpdateContentMetadata(ctx context.Context, uid string, patch map[string]interface{}) error
	ExecuteWorkflowTransition(ctx context.Context, uid, transitionID, comments string) (*TransitionOutcome, error)
	CanUserExecuteTransition(ctx context.Context, uid, transitionID, userID string) (bool, error)
	GetUserRolesForContent(ctx context.Context, uid, userID string) ([]string, error)
}
