// Package memory provides in-process implementations of the content system
// and audit sink for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/content"
)

// Method names accepted by FailOn.
const (
	MethodGetContent       = "GetContentByUID"
	MethodGetWorkflowInfo  = "GetWorkflowInfo"
	MethodCreateWorkflow   = "CreateWorkflow"
	MethodDeleteWorkflow   = "DeleteWorkflow"
	MethodAssignWorkflow   = "AssignWorkflowToContent"
	MethodSetState         = "SetWorkflowState"
	MethodAssignLocalRoles = "AssignLocalRoles"
	MethodUpdateMetadata   = "UpdateContentMetadata"
	MethodExecute          = "ExecuteWorkflowTransition"
	MethodCanExecute       = "CanUserExecuteTransition"
	MethodUserRoles        = "GetUserRolesForContent"
)

type item struct {
	summary    content.Summary
	workflowID string
	state      string
	history    []content.HistoryEntry
	localRoles map[string][]string
}

// ContentSystem is a thread-safe in-memory content.System.
type ContentSystem struct {
	mu          sync.Mutex
	items       map[string]*item
	workflows   map[string]*content.WorkflowDefinition
	globalRoles map[string][]string
	failures    map[string]error
	now         func() time.Time
}

var _ content.System = (*ContentSystem)(nil)

// NewContentSystem creates an empty content system.
func NewContentSystem() *ContentSystem {
	return &ContentSystem{
		items:       make(map[string]*item),
		workflows:   make(map[string]*content.WorkflowDefinition),
		globalRoles: make(map[string][]string),
		failures:    make(map[string]error),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AddContent creates a content item attached to workflowID in state.
func (s *ContentSystem) AddContent(uid, title, workflowID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[uid] = &item{
		summary: content.Summary{
			UID:        uid,
			Title:      title,
			PortalType: "Document",
			Path:       "/" + uid,
			Metadata:   make(map[string]json.RawMessage),
		},
		workflowID: workflowID,
		state:      state,
		localRoles: make(map[string][]string),
	}
}

// GrantGlobalRole gives userID an external role on every item.
func (s *ContentSystem) GrantGlobalRole(userID, externalRole string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalRoles[userID] = appendUnique(s.globalRoles[userID], externalRole)
}

// FailOn makes method fail with err for uid. An empty uid matches every
// item; for workflow methods uid is the workflow id. A nil err clears it.
func (s *ContentSystem) FailOn(method, uid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + "|" + uid
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// HasWorkflow reports whether a native workflow definition exists.
func (s *ContentSystem) HasWorkflow(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workflows[workflowID]
	return ok
}

// LocalRoles returns a copy of the local role assignments on uid.
func (s *ContentSystem) LocalRoles(uid string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[uid]
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(it.localRoles))
	for k, v := range it.localRoles {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func (s *ContentSystem) fail(ctx context.Context, method, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.failures[method+"|"+uid]; ok {
		return err
	}
	if err, ok := s.failures[method+"|"]; ok {
		return err
	}
	return nil
}

func (s *ContentSystem) get(uid string) (*item, error) {
	it, ok := s.items[uid]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", uid)
	}
	return it, nil
}

func (s *ContentSystem) GetContentByUID(ctx context.Context, uid string) (*content.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodGetContent, uid); err != nil {
		return nil, err
	}
	it, ok := s.items[uid]
	if !ok {
		return nil, nil
	}
	sum := it.summary
	sum.ReviewState = it.state
	sum.Metadata = make(map[string]json.RawMessage, len(it.summary.Metadata))
	for k, v := range it.summary.Metadata {
		sum.Metadata[k] = append(json.RawMessage(nil), v...)
	}
	return &sum, nil
}

func (s *ContentSystem) GetWorkflowInfo(ctx context.Context, uid string) (*content.WorkflowInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodGetWorkflowInfo, uid); err != nil {
		return nil, err
	}
	it, err := s.get(uid)
	if err != nil {
		return nil, err
	}
	info := &content.WorkflowInfo{
		State:       it.state,
		WorkflowID:  it.workflowID,
		Transitions: []content.TransitionInfo{},
		History:     append([]content.HistoryEntry{}, it.history...),
	}
	if def, ok := s.workflows[it.workflowID]; ok {
		for _, tr := range def.Transitions {
			if tr.From == it.state {
				info.Transitions = append(info.Transitions, content.TransitionInfo{ID: tr.ID, Title: tr.Title})
			}
		}
	}
	return info, nil
}

func (s *ContentSystem) CreateWorkflow(ctx context.Context, workflowID string, def *content.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodCreateWorkflow, workflowID); err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("workflow definition is nil")
	}
	cp := *def
	cp.ID = workflowID
	s.workflows[workflowID] = &cp
	return nil
}

func (s *ContentSystem) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodDeleteWorkflow, workflowID); err != nil {
		return err
	}
	if _, ok := s.workflows[workflowID]; !ok {
		return fmt.Errorf("workflow not found: %s", workflowID)
	}
	delete(s.workflows, workflowID)
	return nil
}

func (s *ContentSystem) AssignWorkflowToContent(ctx context.Context, uid, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodAssignWorkflow, uid); err != nil {
		return err
	}
	it, err := s.get(uid)
	if err != nil {
		return err
	}
	it.workflowID = workflowID
	return nil
}

func (s *ContentSystem) SetWorkflowState(ctx context.Context, uid, stateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodSetState, uid); err != nil {
		return err
	}
	it, err := s.get(uid)
	if err != nil {
		return err
	}
	it.state = stateID
	return nil
}

func (s *ContentSystem) AssignLocalRoles(ctx context.Context, uid, externalRole string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodAssignLocalRoles, uid); err != nil {
		return err
	}
	it, err := s.get(uid)
	if err != nil {
		return err
	}
	for _, u := range userIDs {
		it.localRoles[externalRole] = appendUnique(it.localRoles[externalRole], u)
	}
	return nil
}

func (s *ContentSystem) UpdateContentMetadata(ctx context.Context, uid string, patch map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodUpdateMetadata, uid); err != nil {
		return err
	}
	it, err := s.get(uid)
	if err != nil {
		return err
	}
	encoded := make(map[string]json.RawMessage, len(patch))
	for k, v := range patch {
		if v == nil {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode metadata %s: %w", k, err)
		}
		encoded[k] = raw
	}
	for k, v := range patch {
		if v == nil {
			delete(it.summary.Metadata, k)
			continue
		}
		it.summary.Metadata[k] = encoded[k]
	}
	return nil
}

func (s *ContentSystem) ExecuteWorkflowTransition(ctx context.Context, uid, transitionID, comments string) (*content.TransitionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodExecute, uid); err != nil {
		return nil, err
	}
	it, err := s.get(uid)
	if err != nil {
		return nil, err
	}
	tr, err := s.transition(it, transitionID)
	if err != nil {
		return nil, err
	}
	entry := content.HistoryEntry{
		Action:    tr.ID,
		FromState: it.state,
		ToState:   tr.To,
		Comments:  comments,
		Time:      s.now(),
	}
	it.state = tr.To
	it.history = append(it.history, entry)
	return &content.TransitionOutcome{NewState: tr.To, HistoryEntry: entry}, nil
}

func (s *ContentSystem) CanUserExecuteTransition(ctx context.Context, uid, transitionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodCanExecute, uid); err != nil {
		return false, err
	}
	it, err := s.get(uid)
	if err != nil {
		return false, err
	}
	tr, err := s.transition(it, transitionID)
	if err != nil {
		return false, nil
	}
	roles := s.userRoles(it, userID)
	for _, guard := range tr.GuardRoles {
		for _, r := range roles {
			if r == guard {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *ContentSystem) GetUserRolesForContent(ctx context.Context, uid, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, MethodUserRoles, uid); err != nil {
		return nil, err
	}
	it, err := s.get(uid)
	if err != nil {
		return nil, err
	}
	return s.userRoles(it, userID), nil
}

func (s *ContentSystem) transition(it *item, transitionID string) (*content.TransitionDefinition, error) {
	def, ok := s.workflows[it.workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", it.workflowID)
	}
	for i := range def.Transitions {
		tr := &def.Transitions[i]
		if tr.ID == transitionID && tr.From == it.state {
			return tr, nil
		}
	}
	return nil, fmt.Errorf("transition %s not available in state %s", transitionID, it.state)
}

func (s *ContentSystem) userRoles(it *item, userID string) []string {
	roles := append([]string(nil), s.globalRoles[userID]...)
	for r, users := range it.localRoles {
		for _, u := range users {
			if u == userID {
				roles = appendUnique(roles, r)
				break
			}
		}
	}
	sort.Strings(roles)
	if roles == nil {
		roles = []string{}
	}
	return roles
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
