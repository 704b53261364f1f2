package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAnonymous, ActionMessageSubmit, true},
		{RoleAnonymous, ActionMessageReview, false},
		{RoleUser, ActionMessageSubmit, true},
		{RoleUser, ActionMessageReview, false},
		{RoleUser, ActionBanManage, false},
		{RoleModerator, ActionMessageReview, true},
		{RoleModerator, ActionBanManage, true},
		{RoleModerator, ActionBanView, true},
		{RoleModerator, ActionUserRoleUpdate, false},
		{RoleModerator, ActionAuditInternal, false},
		{RoleSuperAdmin, ActionMessageReview, true},
		{RoleSuperAdmin, ActionBanManage, true},
		{RoleSuperAdmin, ActionUserRoleUpdate, true},
		{RoleSuperAdmin, ActionAuditView, true},
		{RoleSuperAdmin, ActionAuditInternal, true},
		{Role("root"), ActionMessageSubmit, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Can(tt.role, tt.action))
		})
	}
}

func TestNewPolicy_CustomTable(t *testing.T) {
	p := NewPolicy(map[Role][]Action{
		RoleModerator: {ActionBanView},
	})
	assert.True(t, p.Can(RoleModerator, ActionBanView))
	assert.False(t, p.Can(RoleModerator, ActionBanManage))
	assert.False(t, p.Can(RoleSuperAdmin, ActionBanView))
	assert.ElementsMatch(t, []Action{ActionBanView}, p.Actions(RoleModerator))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("moderator")
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, r)

	_, err = ParseRole("")
	assert.Error(t, err)
	_, err = ParseRole("admin")
	assert.Error(t, err)
}
