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

func newProjectService(f *fixture) (*services.ProjectService, *services.NotificationService) {
	ns := services.NewNotificationService(f.store)
	return services.NewProjectService(f.store, ns), ns
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t)
	svc, _ := newProjectService(f)
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, f.manager, services.ProjectInput{
		Name:           "Zephyr",
		AllowedUserIDs: []string{f.carol.ID},
	})
	require.NoError(t, err)

	assert.Contains(t, project.AllowedUserIDs, f.manager.ID, "creator is always allow-listed")
	assert.Contains(t, project.AllowedUserIDs, f.carol.ID)
	require.Len(t, project.BoardColumns, 3)
	assert.Equal(t, "todo", project.BoardColumns[0].ID)

	_, err = svc.CreateProject(ctx, f.supervisor, services.ProjectInput{Name: "x"})
	assert.ErrorIs(t, err, services.ErrPermissionDenied, "supervisors cannot create projects")

	_, err = svc.CreateProject(ctx, f.manager, services.ProjectInput{})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestGetAccessible(t *testing.T) {
	f := newFixture(t)
	svc, _ := newProjectService(f)
	ctx := context.Background()

	hidden, err := svc.CreateProject(ctx, f.manager, services.ProjectInput{Name: "Hidden"})
	require.NoError(t, err)

	forAlice, err := svc.GetAccessible(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, forAlice, 1, "alice sees only the project her team is on")
	assert.Equal(t, f.project.ID, forAlice[0].ID)

	forAdmin, err := svc.GetAccessible(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, forAdmin, 2, "administrators see everything")

	forOutsider, err := svc.GetAccessible(ctx, f.outsider)
	require.NoError(t, err)
	assert.Empty(t, forOutsider)

	forManager, err := svc.GetAccessible(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, forManager, 2, "the creator keeps access through the allow-list")
	assert.Equal(t, hidden.ID, forManager[0].ID, "newest first")
}

func TestDeleteProjectCascades(t *testing.T) {
	f := newFixture(t)
	svc, ns := newProjectService(f)
	taskSvc := services.NewTaskService(f.store, ns)
	sprintSvc := services.NewSprintService(f.store, ns)
	chatSvc := services.NewChatService(f.store, ns)
	ctx := context.Background()

	task, err := taskSvc.CreateTask(ctx, f.manager, services.TaskInput{
		Title:     "Doomed task",
		ProjectID: f.project.ID,
	})
	require.NoError(t, err)
	sprint, err := sprintSvc.CreateSprint(ctx, f.manager, services.SprintInput{
		Name:      "Doomed sprint",
		ProjectID: f.project.ID,
	})
	require.NoError(t, err)
	channel, err := chatSvc.CreateChannel(ctx, f.manager, services.ChannelInput{
		Name:     "Apollo talk",
		Type:     models.ChannelProject,
		EntityID: f.project.ID,
	})
	require.NoError(t, err)
	thread, err := chatSvc.CreateThread(ctx, f.manager, channel.ID, "Kickoff", "Welcome")
	require.NoError(t, err)

	general, err := chatSvc.CreateChannel(ctx, f.manager, services.ChannelInput{Name: "Watercooler"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProject(ctx, f.manager, f.project.ID))

	assert.Error(t, f.store.GetOne(ctx, store.CollectionProjects, f.project.ID, &models.Project{}))
	assert.Error(t, f.store.GetOne(ctx, store.CollectionTasks, task.ID, &models.Task{}))
	assert.Error(t, f.store.GetOne(ctx, store.CollectionSprints, sprint.ID, &models.Sprint{}))
	assert.Error(t, f.store.GetOne(ctx, store.CollectionChatChannels, channel.ID, &models.ChatChannel{}))
	assert.Error(t, f.store.GetOne(ctx, store.CollectionChatThreads, thread.ID, &models.ChatThread{}))

	var messages []models.ChatMessage
	require.NoError(t, f.store.Query(ctx, store.CollectionChatMessages, store.Filter{"threadId": thread.ID}, nil, &messages))
	assert.Empty(t, messages, "thread messages are deleted with the thread")

	assert.NoError(t, f.store.GetOne(ctx, store.CollectionChatChannels, general.ID, &models.ChatChannel{}),
		"general channels survive project deletion")
}

func TestDeleteProjectAtomicity(t *testing.T) {
	f := newFixture(t)
	svc, ns := newProjectService(f)
	taskSvc := services.NewTaskService(f.store, ns)
	ctx := context.Background()

	task, err := taskSvc.CreateTask(ctx, f.manager, services.TaskInput{
		Title:     "Survivor",
		ProjectID: f.project.ID,
	})
	require.NoError(t, err)

	f.store.FailNextCommit(errors.New("transaction aborted"))
	err = svc.DeleteProject(ctx, f.manager, f.project.ID)
	require.Error(t, err)

	// Nothing may be partially applied after a failed commit.
	assert.NoError(t, f.store.GetOne(ctx, store.CollectionProjects, f.project.ID, &models.Project{}))
	assert.NoError(t, f.store.GetOne(ctx, store.CollectionTasks, task.ID, &models.Task{}))
}

func TestUpdateProjectImmutableCreatedAt(t *testing.T) {
	f := newFixture(t)
	svc, _ := newProjectService(f)
	ctx := context.Background()

	original, err := svc.GetByID(ctx, f.project.ID)
	require.NoError(t, err)

	updated := *original
	updated.Name = "Apollo 2"
	require.NoError(t, svc.UpdateProject(ctx, f.manager, updated))

	got, err := svc.GetByID(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apollo 2", got.Name)
	assert.Equal(t, original.CreatedAt, got.CreatedAt)
	assert.Equal(t, original.BoardColumns, got.BoardColumns)
}
