package services

import "github.com/swissmarley/agile-compass/models"

// Action is something a user can attempt that is gated by role.
type Action string

const (
	ActionManageProjects Action = "manage_projects"
	ActionManageTasks    Action = "manage_tasks"
	ActionManageSprints  Action = "manage_sprints"
	ActionManageChat     Action = "manage_chat"
	ActionManageUsers    Action = "manage_users"
	ActionManageTeams    Action = "manage_teams"
)

// permittedRoles is the fixed permission table. Creating and deleting
// projects is leadership work; tasks, sprints and chat channels extend to
// supervisors; user, team and role management is administrator-only.
var permittedRoles = map[Action][]models.Role{
	ActionManageProjects: {models.RoleAdministrator, models.RoleManager},
	ActionManageTasks:    {models.RoleAdministrator, models.RoleManager, models.RoleSupervisor},
	ActionManageSprints:  {models.RoleAdministrator, models.RoleManager, models.RoleSupervisor},
	ActionManageChat:     {models.RoleAdministrator, models.RoleManager, models.RoleSupervisor},
	ActionManageUsers:    {models.RoleAdministrator},
	ActionManageTeams:    {models.RoleAdministrator},
}

// CanPerform reports whether a role is allowed to perform an action.
func CanPerform(role models.Role, action Action) bool {
	for _, allowed := range permittedRoles[action] {
		if role == allowed {
			return true
		}
	}
	return false
}

// HasProjectAccess reports whether a user can see a project: administrators
// always, everyone else through the project's user or team allow-list. This
// is evaluated per candidate on every fan-out because allow-lists change
// independently of any single mutation.
func HasProjectAccess(user *models.User, project *models.Project) bool {
	if user == nil || project == nil {
		return false
	}
	if user.Role == models.RoleAdministrator {
		return true
	}
	for _, id := range project.AllowedUserIDs {
		if id == user.ID {
			return true
		}
	}
	if user.TeamID != nil {
		for _, id := range project.AllowedTeamIDs {
			if id == *user.TeamID {
				return true
			}
		}
	}
	return false
}
