package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

// fixture seeds a memory store with a small org: an administrator, a manager,
// a supervisor, two developers on one team, one allow-listed user without a
// team and one outsider with no access to the project.
type fixture struct {
	store *store.MemoryStore

	admin      models.User
	manager    models.User
	supervisor models.User
	alice      models.User
	bob        models.User
	carol      models.User
	outsider   models.User

	devs    models.Team
	project models.Project
}

func strptr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	f := &fixture{store: st}
	f.devs = models.Team{ID: "team-devs", Name: "Developers", MemberIDs: []string{"u-alice", "u-bob"}}

	f.admin = models.User{ID: "u-admin", Name: "Ada Admin", Role: models.RoleAdministrator}
	f.manager = models.User{ID: "u-manager", Name: "Mia Manager", Role: models.RoleManager}
	f.supervisor = models.User{ID: "u-supervisor", Name: "Sam Supervisor", Role: models.RoleSupervisor}
	f.alice = models.User{ID: "u-alice", Name: "Alice", Role: models.RoleUser, TeamID: strptr("team-devs")}
	f.bob = models.User{ID: "u-bob", Name: "Bob", Role: models.RoleUser, TeamID: strptr("team-devs")}
	f.carol = models.User{ID: "u-carol", Name: "Carol", Role: models.RoleUser}
	f.outsider = models.User{ID: "u-outsider", Name: "Oscar", Role: models.RoleUser}

	f.project = models.Project{
		ID:   "proj-1",
		Name: "Apollo",
		BoardColumns: []models.BoardColumn{
			{ID: "todo", Title: "To Do"},
			{ID: "inprogress", Title: "In Progress"},
			{ID: "done", Title: "Done"},
		},
		AllowedUserIDs: []string{"u-manager", "u-supervisor", "u-carol"},
		AllowedTeamIDs: []string{"team-devs"},
	}

	for _, u := range []models.User{f.admin, f.manager, f.supervisor, f.alice, f.bob, f.carol, f.outsider} {
		u := u
		_, err := st.Create(ctx, store.CollectionUsers, &u)
		require.NoError(t, err)
	}
	_, err := st.Create(ctx, store.CollectionTeams, &f.devs)
	require.NoError(t, err)
	_, err = st.Create(ctx, store.CollectionProjects, &f.project)
	require.NoError(t, err)

	return f
}

// notificationsFor returns all notifications stored for a recipient.
func (f *fixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	err := f.store.Query(context.Background(), store.CollectionNotifications,
		store.Filter{"recipientUserId": userID}, nil, &out)
	require.NoError(t, err)
	return out
}
