package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelnotes/backend/internal/models"
)

func TestClassify(t *testing.T) {
	project := models.Project{
		ID:            "p1",
		OwnerID:       "owner",
		Collaborators: []string{"alice", "bob"},
	}

	cases := []struct {
		name   string
		userID string
		want   Role
	}{
		{"owner", "owner", RoleOwner},
		{"collaborator", "bob", RoleCollaborator},
		{"stranger", "mallory", RoleNone},
		{"empty", "", RoleNone},
		{"anonymous", "anon_123", RoleNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.userID, project))
		})
	}
}

func TestClassifyOwnerListedAsCollaborator(t *testing.T) {
	project := models.Project{OwnerID: "owner", Collaborators: []string{"owner"}}
	require.Equal(t, RoleOwner, Classify("owner", project))
}

func TestRolePermissions(t *testing.T) {
	require.True(t, RoleOwner.HasAccess())
	require.True(t, RoleOwner.CanManage())
	require.True(t, RoleCollaborator.HasAccess())
	require.False(t, RoleCollaborator.CanManage())
	require.False(t, RoleNone.HasAccess())
	require.False(t, RoleNone.CanManage())
}
