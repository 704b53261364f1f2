package acl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPolicy_EmptyPathIsDefault(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.True(t, p.Can(RoleModerator, ActionMessageReview))
}

func TestLoadPolicy_Valid(t *testing.T) {
	path := writePolicy(t, `{
		"anonymous": ["message.submit"],
		"moderator": ["message.review"],
		"super_admin": ["message.review", "audit.view"]
	}`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.Can(RoleAnonymous, ActionMessageSubmit))
	assert.True(t, p.Can(RoleModerator, ActionMessageReview))
	assert.False(t, p.Can(RoleModerator, ActionBanManage))
	assert.True(t, p.Can(RoleSuperAdmin, ActionAuditView))
	assert.False(t, p.Can(RoleUser, ActionMessageSubmit))
}

func TestLoadPolicy_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"bad json", `not json`, "failed to parse"},
		{"unknown role", `{"admin": ["message.review"]}`, "unknown role"},
		{"unknown action", `{"moderator": ["message.nuke"]}`, "unknown action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
