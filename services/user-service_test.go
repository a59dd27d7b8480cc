package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/services"
	"github.com/swissmarley/agile-compass/store"
)

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, f.admin, services.UserInput{
		ID:     "auth-uid-1",
		Name:   "Nina",
		TeamID: strptr(f.devs.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, "auth-uid-1", user.ID, "profile id is the auth uid")
	assert.Equal(t, models.RoleUser, user.Role, "role defaults to User")

	// The team's member list is kept in sync.
	var team models.Team
	require.NoError(t, f.store.GetOne(ctx, store.CollectionTeams, f.devs.ID, &team))
	assert.Contains(t, team.MemberIDs, "auth-uid-1")

	_, err = svc.CreateUser(ctx, f.manager, services.UserInput{ID: "x", Name: "X"})
	assert.ErrorIs(t, err, services.ErrPermissionDenied)

	_, err = svc.CreateUser(ctx, f.admin, services.UserInput{Name: "No UID"})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestUpdateUserRoleRules(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ctx := context.Background()

	// A user cannot touch someone else's profile.
	other := f.bob
	other.Name = "Hijacked"
	err := svc.UpdateUser(ctx, f.alice, other)
	assert.ErrorIs(t, err, services.ErrPermissionDenied)

	// A user editing themselves cannot escalate their role.
	self := f.alice
	self.Name = "Alice Renamed"
	self.Role = models.RoleAdministrator
	require.NoError(t, svc.UpdateUser(ctx, f.alice, self))

	got, err := svc.GetByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", got.Name)
	assert.Equal(t, models.RoleUser, got.Role, "self-updates never change the role")

	// An administrator can change another user's role.
	promoted := *got
	promoted.Role = models.RoleSupervisor
	require.NoError(t, svc.UpdateUser(ctx, f.admin, promoted))
	got, err = svc.GetByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, got.Role)
}

func TestUpdateUserTeamChangeSyncsMemberLists(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ctx := context.Background()

	qa := models.Team{ID: "team-qa", Name: "QA", MemberIDs: []string{}}
	_, err := f.store.Create(ctx, store.CollectionTeams, &qa)
	require.NoError(t, err)

	moved := f.alice
	moved.TeamID = strptr(qa.ID)
	require.NoError(t, svc.UpdateUser(ctx, f.admin, moved))

	var devs, qaTeam models.Team
	require.NoError(t, f.store.GetOne(ctx, store.CollectionTeams, f.devs.ID, &devs))
	require.NoError(t, f.store.GetOne(ctx, store.CollectionTeams, qa.ID, &qaTeam))
	assert.NotContains(t, devs.MemberIDs, f.alice.ID)
	assert.Contains(t, qaTeam.MemberIDs, f.alice.ID)
}

func TestDeleteUserCleansReferences(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ns := services.NewNotificationService(f.store)
	taskSvc := services.NewTaskService(f.store, ns)
	ctx := context.Background()

	task, err := taskSvc.CreateTask(ctx, f.manager, services.TaskInput{
		Title:           "Assigned work",
		ProjectID:       f.project.ID,
		AssignedUserIDs: []string{f.carol.ID},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, f.admin, f.carol.ID))

	assert.Error(t, f.store.GetOne(ctx, store.CollectionUsers, f.carol.ID, &models.User{}))

	var gotTask models.Task
	require.NoError(t, f.store.GetOne(ctx, store.CollectionTasks, task.ID, &gotTask))
	assert.NotContains(t, gotTask.AssignedUserIDs, f.carol.ID)

	var project models.Project
	require.NoError(t, f.store.GetOne(ctx, store.CollectionProjects, f.project.ID, &project))
	assert.NotContains(t, project.AllowedUserIDs, f.carol.ID)
}

func TestDeleteUserGuards(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ctx := context.Background()

	err := svc.DeleteUser(ctx, f.admin, f.admin.ID)
	assert.ErrorIs(t, err, services.ErrInvalidInput, "administrators cannot delete themselves")

	err = svc.DeleteUser(ctx, f.manager, f.carol.ID)
	assert.ErrorIs(t, err, services.ErrPermissionDenied)

	err = svc.DeleteUser(ctx, f.admin, "ghost")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteUserAtomicity(t *testing.T) {
	f := newFixture(t)
	svc := services.NewUserService(f.store)
	ctx := context.Background()

	f.store.FailNextCommit(errors.New("transaction aborted"))
	err := svc.DeleteUser(ctx, f.admin, f.alice.ID)
	require.Error(t, err)

	assert.NoError(t, f.store.GetOne(ctx, store.CollectionUsers, f.alice.ID, &models.User{}))
	var devs models.Team
	require.NoError(t, f.store.GetOne(ctx, store.CollectionTeams, f.devs.ID, &devs))
	assert.Contains(t, devs.MemberIDs, f.alice.ID)
}
