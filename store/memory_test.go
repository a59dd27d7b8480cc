package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	team := models.Team{Name: "Platform", MemberIDs: []string{}}
	id, err := st.Create(ctx, store.CollectionTeams, &team)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// An explicit id is preserved.
	user := models.User{ID: "auth-1", Name: "Nina", Role: models.RoleUser}
	id, err = st.Create(ctx, store.CollectionUsers, &user)
	require.NoError(t, err)
	assert.Equal(t, "auth-1", id)

	var got models.User
	require.NoError(t, st.GetOne(ctx, store.CollectionUsers, "auth-1", &got))
	assert.Equal(t, "Nina", got.Name)
}

func TestMemoryStoreGetOneNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	err := st.GetOne(context.Background(), store.CollectionUsers, "ghost", &models.User{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreUpdateFields(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	task := models.Task{ID: "t1", Title: "Old", Status: "backlog", ProjectID: "p1"}
	_, err := st.Create(ctx, store.CollectionTasks, &task)
	require.NoError(t, err)

	require.NoError(t, st.Update(ctx, store.CollectionTasks, "t1", map[string]any{
		"title":    "New",
		"status":   "todo",
		"sprintId": "s1",
	}))

	var got models.Task
	require.NoError(t, st.GetOne(ctx, store.CollectionTasks, "t1", &got))
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "todo", got.Status)
	require.NotNil(t, got.SprintID, "plain string is wrapped into the pointer field")
	assert.Equal(t, "s1", *got.SprintID)

	// nil clears a pointer field.
	require.NoError(t, st.Update(ctx, store.CollectionTasks, "t1", map[string]any{"sprintId": nil}))
	require.NoError(t, st.GetOne(ctx, store.CollectionTasks, "t1", &got))
	assert.Nil(t, got.SprintID)

	err = st.Update(ctx, store.CollectionTasks, "ghost", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	tasks := []models.Task{
		{ID: "t1", Title: "a", ProjectID: "p1", Status: "todo", AssignedUserIDs: []string{"u1", "u2"}},
		{ID: "t2", Title: "b", ProjectID: "p1", Status: "done", AssignedUserIDs: []string{"u2"}},
		{ID: "t3", Title: "c", ProjectID: "p2", Status: "todo", AssignedUserIDs: []string{"u3"}},
	}
	for i := range tasks {
		_, err := st.Create(ctx, store.CollectionTasks, &tasks[i])
		require.NoError(t, err)
	}

	var got []models.Task
	require.NoError(t, st.Query(ctx, store.CollectionTasks, store.Filter{"projectId": "p1"}, nil, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID, "no order falls back to id order")

	// Scalar against an array field matches array membership, as in MongoDB.
	require.NoError(t, st.Query(ctx, store.CollectionTasks, store.Filter{"assignedUserIds": "u2"}, nil, &got))
	require.Len(t, got, 2)

	require.NoError(t, st.Query(ctx, store.CollectionTasks,
		store.Filter{"projectId": "p1", "status": "todo"}, nil, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)

	require.NoError(t, st.Query(ctx, store.CollectionTasks, store.Filter{"projectId": "nope"}, nil, &got))
	assert.Empty(t, got)
}

func TestMemoryStoreQueryTypedEnumFilter(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	sprints := []models.Sprint{
		{ID: "s1", ProjectID: "p1", Status: models.SprintActive},
		{ID: "s2", ProjectID: "p1", Status: models.SprintPlanned},
	}
	for i := range sprints {
		_, err := st.Create(ctx, store.CollectionSprints, &sprints[i])
		require.NoError(t, err)
	}

	var got []models.Sprint
	require.NoError(t, st.Query(ctx, store.CollectionSprints,
		store.Filter{"status": models.SprintActive}, nil, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestMemoryStoreQueryOrder(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"n1", "n2", "n3"} {
		n := models.Notification{ID: id, RecipientUserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		_, err := st.Create(ctx, store.CollectionNotifications, &n)
		require.NoError(t, err)
	}

	var got []models.Notification
	order := &store.Order{Field: "createdAt", Desc: true}
	require.NoError(t, st.Query(ctx, store.CollectionNotifications, nil, order, &got))
	require.Len(t, got, 3)
	assert.Equal(t, "n3", got[0].ID, "newest first")
	assert.Equal(t, "n1", got[2].ID)
}

func TestMemoryStoreBatchAllOrNothing(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	user := models.User{ID: "u1", Name: "Ada", Role: models.RoleUser}
	_, err := st.Create(ctx, store.CollectionUsers, &user)
	require.NoError(t, err)

	// A batch with an update against a missing document applies nothing.
	batch := st.Batch()
	batch.Delete(store.CollectionUsers, "u1")
	batch.Update(store.CollectionTeams, "ghost", map[string]any{"name": "x"})
	err = batch.Commit(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, st.GetOne(ctx, store.CollectionUsers, "u1", &models.User{}),
		"the delete in the failed batch must not have applied")

	// A valid batch applies everything.
	team := models.Team{ID: "team1", Name: "Core", MemberIDs: []string{"u1"}}
	batch = st.Batch()
	batch.Set(store.CollectionTeams, team.ID, &team)
	batch.Update(store.CollectionUsers, "u1", map[string]any{"teamId": "team1"})
	require.NoError(t, batch.Commit(ctx))

	var got models.User
	require.NoError(t, st.GetOne(ctx, store.CollectionUsers, "u1", &got))
	require.NotNil(t, got.TeamID)
	assert.Equal(t, "team1", *got.TeamID)
}

func TestMemoryStoreFailNextCommit(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	user := models.User{ID: "u1", Name: "Ada", Role: models.RoleUser}
	_, err := st.Create(ctx, store.CollectionUsers, &user)
	require.NoError(t, err)

	injected := errors.New("socket closed")
	st.FailNextCommit(injected)

	batch := st.Batch()
	batch.Delete(store.CollectionUsers, "u1")
	assert.ErrorIs(t, batch.Commit(ctx), injected)
	assert.NoError(t, st.GetOne(ctx, store.CollectionUsers, "u1", &models.User{}))

	// Only the next commit fails.
	batch = st.Batch()
	batch.Delete(store.CollectionUsers, "u1")
	require.NoError(t, batch.Commit(ctx))
	assert.ErrorIs(t, st.GetOne(ctx, store.CollectionUsers, "u1", &models.User{}), store.ErrNotFound)
}

func TestMemoryStoreSubscribe(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	var changes []store.Change
	cancel, err := st.Subscribe(ctx, store.CollectionTasks, nil, func(c store.Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	task := models.Task{ID: "t1", Title: "watched", ProjectID: "p1"}
	_, err = st.Create(ctx, store.CollectionTasks, &task)
	require.NoError(t, err)
	require.NoError(t, st.Update(ctx, store.CollectionTasks, "t1", map[string]any{"title": "renamed"}))
	require.NoError(t, st.Delete(ctx, store.CollectionTasks, "t1"))

	// Changes on other collections are not delivered.
	user := models.User{ID: "u1", Name: "Ada", Role: models.RoleUser}
	_, err = st.Create(ctx, store.CollectionUsers, &user)
	require.NoError(t, err)

	require.Len(t, changes, 3)
	assert.Equal(t, store.ChangeCreated, changes[0].Type)
	assert.Equal(t, store.ChangeUpdated, changes[1].Type)
	assert.Equal(t, store.ChangeDeleted, changes[2].Type)

	cancel()
	_, err = st.Create(ctx, store.CollectionTasks, &models.Task{ID: "t2", Title: "after", ProjectID: "p1"})
	require.NoError(t, err)
	assert.Len(t, changes, 3, "no delivery after unsubscribe")
}
