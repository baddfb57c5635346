package rolemap

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// RoleMappingError reports a role with no entry in the mapping table.
type RoleMappingError struct {
	Role string
}

func (e *RoleMappingError) Error() string {
	return fmt.Sprintf("no role mapping for %q", e.Role)
}

// PermissionMappingError reports an action with no external permission.
type PermissionMappingError struct {
	Action role.Action
}

func (e *PermissionMappingError) Error() string {
	return fmt.Sprintf("no permission mapping for action %q", e.Action)
}

// ValidationResult is the outcome of checking a template's roles and actions.
type ValidationResult struct {
	Valid              bool     `json:"valid"`
	MissingRoles       []string `json:"missingRoles"`
	InvalidPermissions []string `json:"invalidPermissions"`
	Warnings           []string `json:"warnings"`
	Errors             []string `json:"errors"`
}

// Mapper translates between internal and external role vocabularies.
type Mapper struct {
	forward map[role.Internal]role.Mapping
	reverse map[string]role.Internal
	logger  zerolog.Logger
}

// NewMapper builds a mapper over the fixed role table.
func NewMapper(logger zerolog.Logger) *Mapper {
	return newMapper(role.Mappings, logger)
}

func newMapper(mappings []role.Mapping, logger zerolog.Logger) *Mapper {
	m := &Mapper{
		forward: make(map[role.Internal]role.Mapping, len(mappings)),
		reverse: make(map[string]role.Internal, len(mappings)),
		logger:  logger.With().Str("service", "rolemap").Logger(),
	}
	for _, rm := range mappings {
		m.forward[rm.Internal] = rm
		m.reverse[rm.External] = rm.Internal
	}
	return m
}

func mappingErr(op string, r string) error {
	return &errs.Error{Kind: errs.KindValidation, Op: op, Message: "unmapped role", Err: &RoleMappingError{Role: r}}
}

// ExternalRole returns the external role name for r.
func (m *Mapper) ExternalRole(r role.Internal) (string, error) {
	rm, ok := m.forward[r]
	if !ok {
		return "", mappingErr("rolemap.ExternalRole", string(r))
	}
	return rm.External, nil
}

// InternalRole returns the internal role for an external role name.
func (m *Mapper) InternalRole(external string) (role.Internal, error) {
	r, ok := m.reverse[external]
	if !ok {
		return "", mappingErr("rolemap.InternalRole", external)
	}
	return r, nil
}

// Permissions returns the default actions of r, empty for unknown roles.
func (m *Mapper) Permissions(r role.Internal) []role.Action {
	rm, ok := m.forward[r]
	if !ok {
		return []role.Action{}
	}
	return role.SortActions(append([]role.Action(nil), rm.DefaultActions...))
}

// ExternalPermission returns the external permission name for an action.
func (m *Mapper) ExternalPermission(a role.Action) (string, error) {
	p, ok := role.Permissions[a]
	if !ok {
		return "", &errs.Error{Kind: errs.KindValidation, Op: "rolemap.ExternalPermission", Message: "unmapped action", Err: &PermissionMappingError{Action: a}}
	}
	return p, nil
}

// Mappings returns the mapping table in declaration order.
func (m *Mapper) Mappings() []role.Mapping {
	return append([]role.Mapping(nil), role.Mappings...)
}

// ValidateTemplateRoles checks every role and action the template uses.
// Privileged roles produce warnings, unmapped roles and actions produce errors.
func (m *Mapper) ValidateTemplateRoles(t *workflow.Template) ValidationResult {
	missing := make(map[string]struct{})
	invalid := make(map[string]struct{})
	privileged := make(map[string]struct{})

	checkRole := func(r role.Internal) {
		rm, ok := m.forward[r]
		if !ok {
			missing[string(r)] = struct{}{}
			return
		}
		if rm.Privileged {
			privileged[string(r)] = struct{}{}
		}
	}
	checkPerm := func(where string, p workflow.Permission) {
		checkRole(p.Role)
		for _, a := range p.Actions {
			if _, ok := role.Permissions[a]; !ok {
				invalid[fmt.Sprintf("%s: %s", where, a)] = struct{}{}
			}
		}
	}

	for _, s := range t.States {
		for _, p := range s.Permissions {
			checkPerm("state "+s.ID, p)
		}
	}
	for _, tr := range t.Transitions {
		checkRole(tr.RequiredRole)
	}
	for _, p := range t.DefaultPermissions {
		checkPerm("default", p)
	}

	res := ValidationResult{
		MissingRoles:       sortedKeys(missing),
		InvalidPermissions: sortedKeys(invalid),
		Warnings:           []string{},
		Errors:             []string{},
	}
	for _, r := range res.MissingRoles {
		res.Errors = append(res.Errors, fmt.Sprintf("role %q has no external mapping", r))
	}
	for _, p := range res.InvalidPermissions {
		res.Errors = append(res.Errors, fmt.Sprintf("action has no external permission (%s)", p))
	}
	for _, r := range sortedKeys(privileged) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("template grants privileged role %q", r))
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// ValidateRoleAssignments checks that every assigned role is mapped and has users.
func (m *Mapper) ValidateRoleAssignments(assignments map[role.Internal][]string) ValidationResult {
	res := ValidationResult{
		MissingRoles:       []string{},
		InvalidPermissions: []string{},
		Warnings:           []string{},
		Errors:             []string{},
	}
	roles := make([]string, 0, len(assignments))
	for r := range assignments {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	for _, r := range roles {
		rm, ok := m.forward[role.Internal(r)]
		if !ok {
			res.MissingRoles = append(res.MissingRoles, r)
			res.Errors = append(res.Errors, fmt.Sprintf("role %q has no external mapping", r))
			continue
		}
		if len(assignments[role.Internal(r)]) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("role %q has no users assigned", r))
		}
		if rm.Privileged {
			res.Warnings = append(res.Warnings, fmt.Sprintf("assignment grants privileged role %q", r))
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// BuildExternalRoleAssignments translates assignment keys to external roles.
func (m *Mapper) BuildExternalRoleAssignments(assignments map[role.Internal][]string) (map[string][]string, error) {
	out := make(map[string][]string, len(assignments))
	for r, users := range assignments {
		ext, err := m.ExternalRole(r)
		if err != nil {
			return nil, err
		}
		out[ext] = append([]string(nil), users...)
	}
	return out, nil
}

// BuildPermissionMatrix returns, per state, external permission -> sorted external roles.
// State permissions are unioned with the template defaults. Unmapped entries are skipped.
func (m *Mapper) BuildPermissionMatrix(t *workflow.Template) map[string]map[string][]string {
	matrix := make(map[string]map[string][]string, len(t.States))
	for _, s := range t.States {
		grants := make(map[string]map[string]struct{})
		add := func(p workflow.Permission) {
			ext, ok := m.forward[p.Role]
			if !ok {
				return
			}
			for _, a := range p.Actions {
				perm, ok := role.Permissions[a]
				if !ok {
					continue
				}
				if grants[perm] == nil {
					grants[perm] = make(map[string]struct{})
				}
				grants[perm][ext.External] = struct{}{}
			}
		}
		for _, p := range s.Permissions {
			add(p)
		}
		for _, p := range t.DefaultPermissions {
			add(p)
		}
		row := make(map[string][]string, len(grants))
		for perm, roles := range grants {
			row[perm] = sortedKeys(roles)
		}
		matrix[s.ID] = row
	}
	return matrix
}

// RoleHierarchy returns the privilege score of every external role.
func (m *Mapper) RoleHierarchy() map[string]int {
	out := make(map[string]int, len(role.Hierarchy))
	for k, v := range role.Hierarchy {
		out[k] = v
	}
	return out
}

// CheckCompatibility reports whether any of the user's external roles scores
// at least as high as the required internal role. It fails closed.
func (m *Mapper) CheckCompatibility(userExternalRoles []string, required role.Internal) bool {
	rm, ok := m.forward[required]
	if !ok {
		m.logger.Warn().Str("required_role", string(required)).Msg("required role has no mapping, denying")
		return false
	}
	need, ok := role.Hierarchy[rm.External]
	if !ok {
		m.logger.Warn().Str("required_role", string(required)).Msg("required role has no hierarchy score, denying")
		return false
	}
	if len(userExternalRoles) == 0 {
		m.logger.Warn().Str("required_role", string(required)).Msg("user has no roles, denying")
		return false
	}
	for _, r := range userExternalRoles {
		if score, ok := role.Hierarchy[r]; ok && score >= need {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
