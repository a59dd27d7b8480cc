package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/services"
)

func newChatService(f *fixture) *services.ChatService {
	return services.NewChatService(f.store, services.NewNotificationService(f.store))
}

func TestCreateChannel(t *testing.T) {
	f := newFixture(t)
	svc := newChatService(f)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{Name: "General"})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelGeneral, channel.Type, "type defaults to general")

	_, err = svc.CreateChannel(ctx, f.alice, services.ChannelInput{Name: "Nope"})
	assert.ErrorIs(t, err, services.ErrPermissionDenied)

	_, err = svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{
		Name: "Scoped",
		Type: models.ChannelProject,
	})
	assert.ErrorIs(t, err, services.ErrInvalidInput, "entity channels need an entity id")
}

func TestCreateThreadWithFirstMessage(t *testing.T) {
	f := newFixture(t)
	svc := newChatService(f)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{Name: "General"})
	require.NoError(t, err)

	thread, err := svc.CreateThread(ctx, f.alice, channel.ID, "Standup notes", "Monday recap")
	require.NoError(t, err)
	assert.Equal(t, 1, thread.MessageCount, "a thread is born with its first message")
	assert.Equal(t, f.alice.ID, thread.CreatedByUserID)
	assert.Equal(t, thread.CreatedAt, thread.LastMessageAt)

	messages, err := svc.GetMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Monday recap", messages[0].Content)

	_, err = svc.CreateThread(ctx, f.alice, channel.ID, "No body", "")
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = svc.CreateThread(ctx, f.alice, "ghost", "Title", "Body")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestPostMessageUpdatesThreadCounters(t *testing.T) {
	f := newFixture(t)
	svc := newChatService(f)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{Name: "General"})
	require.NoError(t, err)
	thread, err := svc.CreateThread(ctx, f.alice, channel.ID, "Q&A", "First question")
	require.NoError(t, err)

	msg, err := svc.PostMessage(ctx, f.bob, thread.ID, "An answer")
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, msg.UserID)

	threads, err := svc.GetThreads(ctx, channel.ID)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 2, threads[0].MessageCount)
	assert.Equal(t, msg.CreatedAt, threads[0].LastMessageAt)

	_, err = svc.PostMessage(ctx, f.bob, "ghost", "into the void")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestPostMessageNotifiesParticipants(t *testing.T) {
	f := newFixture(t)
	svc := newChatService(f)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{Name: "General"})
	require.NoError(t, err)
	thread, err := svc.CreateThread(ctx, f.alice, channel.ID, "Chatter", "Hello")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, f.outsider, thread.ID, "Hi there")
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, f.bob, thread.ID, "Hey all")
	require.NoError(t, err)

	// Alice and the outsider have both posted; bob is the sender. The
	// channel is general, so the outsider is notified despite having no
	// project access anywhere.
	aliceNotifs := f.notificationsFor(t, f.alice.ID)
	var aliceChat int
	for _, n := range aliceNotifs {
		if n.Type == models.NotificationNewChatMessage {
			aliceChat++
		}
	}
	assert.GreaterOrEqual(t, aliceChat, 1)

	outsiderNotifs := f.notificationsFor(t, f.outsider.ID)
	var outsiderChat int
	for _, n := range outsiderNotifs {
		if n.Type == models.NotificationNewChatMessage {
			outsiderChat++
		}
	}
	assert.GreaterOrEqual(t, outsiderChat, 1, "general channels skip the access filter")
	assert.Empty(t, f.notificationsFor(t, f.bob.ID), "the sender is never notified")
}

func TestPostMessageProjectChannelFiltersByAccess(t *testing.T) {
	f := newFixture(t)
	svc := newChatService(f)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{
		Name:     "Apollo talk",
		Type:     models.ChannelProject,
		EntityID: f.project.ID,
	})
	require.NoError(t, err)
	thread, err := svc.CreateThread(ctx, f.outsider, channel.ID, "Leak", "I found this channel")
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, f.alice, thread.ID, "You should not be here")
	require.NoError(t, err)

	// The outsider is a participant but has no access to the project the
	// channel is scoped to, so no notification reaches them.
	for _, n := range f.notificationsFor(t, f.outsider.ID) {
		assert.NotEqual(t, models.NotificationNewChatMessage, n.Type)
	}
}

func TestPostMessageTaskChannelResolvesProject(t *testing.T) {
	f := newFixture(t)
	ns := services.NewNotificationService(f.store)
	svc := services.NewChatService(f.store, ns)
	taskSvc := services.NewTaskService(f.store, ns)
	ctx := context.Background()

	task, err := taskSvc.CreateTask(ctx, f.manager, services.TaskInput{
		Title:     "Discussed task",
		ProjectID: f.project.ID,
	})
	require.NoError(t, err)

	channel, err := svc.CreateChannel(ctx, f.supervisor, services.ChannelInput{
		Name:     "Task talk",
		Type:     models.ChannelTask,
		EntityID: task.ID,
	})
	require.NoError(t, err)
	thread, err := svc.CreateThread(ctx, f.carol, channel.ID, "Details", "How do we start?")
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, f.alice, thread.ID, "With the tests")
	require.NoError(t, err)

	// Carol participates and can access the project the task belongs to.
	var chat int
	for _, n := range f.notificationsFor(t, f.carol.ID) {
		if n.Type == models.NotificationNewChatMessage {
			chat++
		}
	}
	assert.Equal(t, 1, chat)
}
