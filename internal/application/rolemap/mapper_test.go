package rolemap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/role"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

func TestMapper_RoleTranslation(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	for _, rm := range role.Mappings {
		ext, err := m.ExternalRole(rm.Internal)
		require.NoError(t, err)
		back, err := m.InternalRole(ext)
		require.NoError(t, err)
		assert.Equal(t, rm.Internal, back)
	}

	_, err := m.ExternalRole("janitor")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	var mappingErr *RoleMappingError
	require.True(t, errors.As(err, &mappingErr))
	assert.Equal(t, "janitor", mappingErr.Role)

	_, err = m.InternalRole("Janitor")
	assert.Error(t, err)
}

func TestMapper_Permissions(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	assert.Equal(t, []role.Action{role.ActionView}, m.Permissions(role.Viewer))
	assert.Empty(t, m.Permissions("janitor"))

	p, err := m.ExternalPermission(role.ActionEdit)
	require.NoError(t, err)
	assert.Equal(t, "Modify portal content", p)

	_, err = m.ExternalPermission("teleport")
	var permErr *PermissionMappingError
	assert.True(t, errors.As(err, &permErr))
}

func TestMapper_ValidateTemplateRoles(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	t.Run("builtin templates are valid", func(t *testing.T) {
		for _, tpl := range workflow.Builtins() {
			tpl := tpl
			res := m.ValidateTemplateRoles(&tpl)
			assert.True(t, res.Valid, tpl.ID)
			assert.Empty(t, res.Errors)
		}
	})

	t.Run("privileged roles warn", func(t *testing.T) {
		tpl := workflow.SimpleReview()
		res := m.ValidateTemplateRoles(&tpl)
		assert.True(t, res.Valid)
		assert.Equal(t, []string{`template grants privileged role "administrator"`}, res.Warnings)
	})

	t.Run("unmapped role is an error iff it has no mapping", func(t *testing.T) {
		tpl := workflow.SimpleReview()
		tpl.Transitions[1].RequiredRole = "dean"
		tpl.States[0].Permissions = append(tpl.States[0].Permissions, workflow.Permission{
			Role: role.Editor, Actions: []role.Action{"teleport"},
		})

		first := m.ValidateTemplateRoles(&tpl)
		second := m.ValidateTemplateRoles(&tpl)

		assert.False(t, first.Valid)
		assert.Equal(t, []string{"dean"}, first.MissingRoles)
		assert.Equal(t, []string{"state draft: teleport"}, first.InvalidPermissions)
		assert.Len(t, first.Errors, 2)
		assert.Equal(t, first, second)
	})
}

func TestMapper_ValidateRoleAssignments(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	res := m.ValidateRoleAssignments(map[role.Internal][]string{
		role.Author:    {"u1"},
		role.Editor:    {},
		role.Publisher: {"p1"},
		"dean":         {"d1"},
	})

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"dean"}, res.MissingRoles)
	assert.Contains(t, res.Warnings, `role "editor" has no users assigned`)
	assert.Contains(t, res.Warnings, `assignment grants privileged role "publisher"`)
}

func TestMapper_BuildExternalRoleAssignments(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	out, err := m.BuildExternalRoleAssignments(map[role.Internal][]string{
		role.Author: {"u1", "u2"},
		role.Editor: {"e1"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Owner":  {"u1", "u2"},
		"Editor": {"e1"},
	}, out)

	_, err = m.BuildExternalRoleAssignments(map[role.Internal][]string{"dean": {"d1"}})
	assert.Error(t, err)
}

func TestMapper_BuildPermissionMatrix(t *testing.T) {
	m := NewMapper(zerolog.Nop())
	tpl := workflow.SimpleReview()

	matrix := m.BuildPermissionMatrix(&tpl)

	require.Len(t, matrix, 3)
	assert.Equal(t, []string{"Manager", "Owner"}, matrix["draft"]["View"])
	assert.Equal(t, []string{"Manager", "Owner"}, matrix["draft"]["Modify portal content"])
	assert.Equal(t, []string{"Manager"}, matrix["draft"]["Manage workflow"])
	assert.Equal(t, []string{"Editor"}, matrix["review"]["Approve content"])
	assert.Equal(t, []string{"Manager", "Reader"}, matrix["published"]["View"])
}

func TestMapper_CheckCompatibility(t *testing.T) {
	m := NewMapper(zerolog.Nop())

	assert.True(t, m.CheckCompatibility([]string{"Editor"}, role.Editor))
	assert.True(t, m.CheckCompatibility([]string{"Reader", "Manager"}, role.Publisher))
	assert.False(t, m.CheckCompatibility([]string{"Owner"}, role.Editor))
	assert.False(t, m.CheckCompatibility(nil, role.Viewer))
	assert.False(t, m.CheckCompatibility([]string{"Manager"}, "dean"))
	assert.False(t, m.CheckCompatibility([]string{"Janitor"}, role.Viewer))

	h := m.RoleHierarchy()
	assert.Greater(t, h["Manager"], h["Site Administrator"])
	assert.Greater(t, h["Owner"], h["Reader"])
}

func TestMapper_CheckCompatibilityWarnsWhenDenyingUnusableInput(t *testing.T) {
	var buf bytes.Buffer
	m := NewMapper(zerolog.New(&buf))

	assert.False(t, m.CheckCompatibility([]string{}, role.Viewer))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "user has no roles")

	buf.Reset()
	assert.False(t, m.CheckCompatibility([]string{"Manager"}, "dean"))
	assert.Contains(t, buf.String(), "required role has no mapping")

	buf.Reset()
	assert.False(t, m.CheckCompatibility([]string{"Owner"}, role.Editor))
	assert.Empty(t, buf.String(), "an ordinary denial is not a warning")
}
