package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/services"
)

func TestCanPerform(t *testing.T) {
	tests := []struct {
		role    models.Role
		action  services.Action
		allowed bool
	}{
		{models.RoleAdministrator, services.ActionManageProjects, true},
		{models.RoleManager, services.ActionManageProjects, true},
		{models.RoleSupervisor, services.ActionManageProjects, false},
		{models.RoleUser, services.ActionManageProjects, false},

		{models.RoleSupervisor, services.ActionManageTasks, true},
		{models.RoleSupervisor, services.ActionManageSprints, true},
		{models.RoleSupervisor, services.ActionManageChat, true},
		{models.RoleUser, services.ActionManageTasks, false},

		{models.RoleAdministrator, services.ActionManageUsers, true},
		{models.RoleManager, services.ActionManageUsers, false},
		{models.RoleAdministrator, services.ActionManageTeams, true},
		{models.RoleManager, services.ActionManageTeams, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, services.CanPerform(tt.role, tt.action),
			"role %s action %s", tt.role, tt.action)
	}
}

func TestHasProjectAccess(t *testing.T) {
	teamID := "team-devs"
	project := &models.Project{
		ID:             "p1",
		AllowedUserIDs: []string{"u-direct"},
		AllowedTeamIDs: []string{teamID},
	}

	admin := &models.User{ID: "u-admin", Role: models.RoleAdministrator}
	assert.True(t, services.HasProjectAccess(admin, project), "administrators always have access")

	direct := &models.User{ID: "u-direct", Role: models.RoleUser}
	assert.True(t, services.HasProjectAccess(direct, project), "allow-listed user")

	viaTeam := &models.User{ID: "u-team", Role: models.RoleUser, TeamID: &teamID}
	assert.True(t, services.HasProjectAccess(viaTeam, project), "member of allow-listed team")

	manager := &models.User{ID: "u-mgr", Role: models.RoleManager}
	assert.False(t, services.HasProjectAccess(manager, project),
		"manager role alone grants no access without an allow-list entry")

	outsider := &models.User{ID: "u-out", Role: models.RoleUser}
	assert.False(t, services.HasProjectAccess(outsider, project))

	assert.False(t, services.HasProjectAccess(nil, project))
	assert.False(t, services.HasProjectAccess(admin, nil))
}
