package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

type ChatService struct {
	store         store.Store
	notifications *NotificationService
}

func NewChatService(st store.Store, notifications *NotificationService) *ChatService {
	return &ChatService{
		store:         st,
		notifications: notifications,
	}
}

type ChannelInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Type        models.ChatChannelType `json:"type"`
	EntityID    string                 `json:"entityId"`
}

// CreateChannel persists a chat channel, general by default. Entity-scoped
// channels carry the id of the project, sprint or task they belong to.
func (s *ChatService) CreateChannel(ctx context.Context, actor models.User, in ChannelInput) (*models.ChatChannel, error) {
	if !CanPerform(actor.Role, ActionManageChat) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a chat channel", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: role %s cannot create chat channels", ErrPermissionDenied, actor.Role)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	channelType := in.Type
	if channelType == "" {
		channelType = models.ChannelGeneral
	}
	if channelType != models.ChannelGeneral && in.EntityID == "" {
		return nil, fmt.Errorf("%w: %s channels require an entity id", ErrInvalidInput, channelType)
	}

	channel := models.ChatChannel{
		Name:        in.Name,
		Description: in.Description,
		Type:        channelType,
		EntityID:    in.EntityID,
		CreatedAt:   time.Now(),
	}
	id, err := s.store.Create(ctx, store.CollectionChatChannels, &channel)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat channel: %w", err)
	}
	channel.ID = id
	return &channel, nil
}

// CreateThread creates a thread together with its first message in one batch,
// so a thread can never exist without at least one message.
func (s *ChatService) CreateThread(ctx context.Context, actor models.User, channelID, title, initialMessage string) (*models.ChatThread, error) {
	if title == "" || initialMessage == "" {
		return nil, fmt.Errorf("%w: title and initial message are required", ErrInvalidInput)
	}
	if err := s.store.GetOne(ctx, store.CollectionChatChannels, channelID, &models.ChatChannel{}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
		}
		return nil, fmt.Errorf("failed to fetch channel: %w", err)
	}

	now := time.Now()
	thread := models.ChatThread{
		ID:              uuid.New().String(),
		ChannelID:       channelID,
		Title:           title,
		CreatedByUserID: actor.ID,
		CreatedAt:       now,
		LastMessageAt:   now,
		MessageCount:    1,
	}
	message := models.ChatMessage{
		ID:        uuid.New().String(),
		ThreadID:  thread.ID,
		UserID:    actor.ID,
		Content:   initialMessage,
		CreatedAt: now,
	}

	batch := s.store.Batch()
	batch.Set(store.CollectionChatThreads, thread.ID, &thread)
	batch.Set(store.CollectionChatMessages, message.ID, &message)
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to create chat thread and initial message: %w", err)
	}
	return &thread, nil
}

// PostMessage appends a message and bumps the thread's denormalized counters
// in one batch, then fans out new_chat_message to the thread's participants.
func (s *ChatService) PostMessage(ctx context.Context, actor models.User, threadID, content string) (*models.ChatMessage, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	var thread models.ChatThread
	if err := s.store.GetOne(ctx, store.CollectionChatThreads, threadID, &thread); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
		}
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}

	message := models.ChatMessage{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		UserID:    actor.ID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	batch := s.store.Batch()
	batch.Set(store.CollectionChatMessages, message.ID, &message)
	batch.Update(store.CollectionChatThreads, threadID, map[string]any{
		"lastMessageAt": message.CreatedAt,
		"messageCount":  thread.MessageCount + 1,
	})
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to add chat message and update thread: %w", err)
	}
	thread.MessageCount++
	thread.LastMessageAt = message.CreatedAt

	participants, err := s.threadParticipants(ctx, &thread)
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: Chat fan-out skipped for thread %s: %v", threadID, err)
		return &message, nil
	}
	project, err := s.channelProject(ctx, thread.ChannelID)
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: Chat fan-out skipped for thread %s: %v", threadID, err)
		return &message, nil
	}
	s.notifications.NotifyChatMessage(ctx, actor, &thread, project, participants)
	return &message, nil
}

// threadParticipants returns everyone who has ever posted in the thread plus
// its creator.
func (s *ChatService) threadParticipants(ctx context.Context, thread *models.ChatThread) ([]string, error) {
	var messages []models.ChatMessage
	if err := s.store.Query(ctx, store.CollectionChatMessages, store.Filter{"threadId": thread.ID}, nil, &messages); err != nil {
		return nil, fmt.Errorf("failed to fetch thread messages: %w", err)
	}
	seen := make(map[string]bool)
	var participants []string
	for _, message := range messages {
		if !seen[message.UserID] {
			seen[message.UserID] = true
			participants = append(participants, message.UserID)
		}
	}
	if thread.CreatedByUserID != "" && !seen[thread.CreatedByUserID] {
		participants = append(participants, thread.CreatedByUserID)
	}
	return participants, nil
}

// channelProject resolves the project that scopes a channel, walking through
// the sprint or task for entity channels. General channels resolve to nil.
func (s *ChatService) channelProject(ctx context.Context, channelID string) (*models.Project, error) {
	var channel models.ChatChannel
	if err := s.store.GetOne(ctx, store.CollectionChatChannels, channelID, &channel); err != nil {
		return nil, fmt.Errorf("failed to fetch channel: %w", err)
	}

	var projectID string
	switch channel.Type {
	case models.ChannelProject:
		projectID = channel.EntityID
	case models.ChannelSprint:
		var sprint models.Sprint
		if err := s.store.GetOne(ctx, store.CollectionSprints, channel.EntityID, &sprint); err != nil {
			return nil, fmt.Errorf("failed to fetch sprint for channel: %w", err)
		}
		projectID = sprint.ProjectID
	case models.ChannelTask:
		var task models.Task
		if err := s.store.GetOne(ctx, store.CollectionTasks, channel.EntityID, &task); err != nil {
			return nil, fmt.Errorf("failed to fetch task for channel: %w", err)
		}
		projectID = task.ProjectID
	default:
		return nil, nil
	}
	if projectID == "" {
		return nil, nil
	}

	var project models.Project
	if err := s.store.GetOne(ctx, store.CollectionProjects, projectID, &project); err != nil {
		return nil, fmt.Errorf("failed to fetch project for channel: %w", err)
	}
	return &project, nil
}

func (s *ChatService) GetChannels(ctx context.Context) ([]models.ChatChannel, error) {
	var channels []models.ChatChannel
	order := &store.Order{Field: "name", Desc: false}
	if err := s.store.Query(ctx, store.CollectionChatChannels, nil, order, &channels); err != nil {
		return nil, fmt.Errorf("failed to fetch channels: %w", err)
	}
	return channels, nil
}

func (s *ChatService) GetThreads(ctx context.Context, channelID string) ([]models.ChatThread, error) {
	var threads []models.ChatThread
	filter := store.Filter{"channelId": channelID}
	order := &store.Order{Field: "lastMessageAt", Desc: true}
	if err := s.store.Query(ctx, store.CollectionChatThreads, filter, order, &threads); err != nil {
		return nil, fmt.Errorf("failed to fetch threads: %w", err)
	}
	return threads, nil
}

func (s *ChatService) GetMessages(ctx context.Context, threadID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	filter := store.Filter{"threadId": threadID}
	order := &store.Order{Field: "createdAt", Desc: false}
	if err := s.store.Query(ctx, store.CollectionChatMessages, filter, order, &messages); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
