package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/swissmarley/agile-compass/config"
	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

type ProjectService struct {
	store         store.Store
	notifications *NotificationService
}

func NewProjectService(st store.Store, notifications *NotificationService) *ProjectService {
	return &ProjectService{
		store:         st,
		notifications: notifications,
	}
}

type ProjectInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	AllowedUserIDs []string `json:"allowedUserIds"`
	AllowedTeamIDs []string `json:"allowedTeamIds"`
}

// CreateProject persists a new project with the default board columns and
// fans out project_created notifications. The actor is always added to the
// allow-list so the creator never loses sight of their own project.
func (s *ProjectService) CreateProject(ctx context.Context, actor models.User, in ProjectInput) (*models.Project, error) {
	if !CanPerform(actor.Role, ActionManageProjects) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a project", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: role %s cannot create projects", ErrPermissionDenied, actor.Role)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	allowedUserIDs := append([]string{}, in.AllowedUserIDs...)
	found := false
	for _, id := range allowedUserIDs {
		if id == actor.ID {
			found = true
			break
		}
	}
	if !found {
		allowedUserIDs = append(allowedUserIDs, actor.ID)
	}
	allowedTeamIDs := in.AllowedTeamIDs
	if allowedTeamIDs == nil {
		allowedTeamIDs = []string{}
	}

	project := models.Project{
		Name:           in.Name,
		Description:    in.Description,
		BoardColumns:   config.DefaultBoardColumns,
		AllowedUserIDs: allowedUserIDs,
		AllowedTeamIDs: allowedTeamIDs,
		CreatedAt:      time.Now(),
	}
	id, err := s.store.Create(ctx, store.CollectionProjects, &project)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	project.ID = id
	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %s created by %s", project.ID, actor.ID)

	s.notifications.NotifyProjectCreated(ctx, actor, &project)
	return &project, nil
}

// UpdateProject replaces the mutable project fields. CreatedAt is immutable.
func (s *ProjectService) UpdateProject(ctx context.Context, actor models.User, updated models.Project) error {
	if !CanPerform(actor.Role, ActionManageProjects) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to update project %s", actor.ID, actor.Role, updated.ID)
		return fmt.Errorf("%w: role %s cannot update projects", ErrPermissionDenied, actor.Role)
	}
	if updated.ID == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	boardColumns := updated.BoardColumns
	if len(boardColumns) == 0 {
		boardColumns = config.DefaultBoardColumns
	}
	fields := map[string]any{
		"name":           updated.Name,
		"description":    updated.Description,
		"boardColumns":   boardColumns,
		"allowedUserIds": orEmpty(updated.AllowedUserIDs),
		"allowedTeamIds": orEmpty(updated.AllowedTeamIDs),
	}
	if err := s.store.Update(ctx, store.CollectionProjects, updated.ID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: project %s", ErrNotFound, updated.ID)
		}
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// DeleteProject removes a project together with its tasks, sprints and
// project-scoped chat channels (including their threads and messages) in one
// atomic batch. This is the only cascading hard-delete in the system; a
// failed commit leaves everything in place.
func (s *ProjectService) DeleteProject(ctx context.Context, actor models.User, projectID string) error {
	if !CanPerform(actor.Role, ActionManageProjects) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to delete project %s", actor.ID, actor.Role, projectID)
		return fmt.Errorf("%w: role %s cannot delete projects", ErrPermissionDenied, actor.Role)
	}

	var project models.Project
	if err := s.store.GetOne(ctx, store.CollectionProjects, projectID, &project); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
		return fmt.Errorf("failed to fetch project: %w", err)
	}

	batch := s.store.Batch()
	batch.Delete(store.CollectionProjects, projectID)

	var tasks []models.Task
	if err := s.store.Query(ctx, store.CollectionTasks, store.Filter{"projectId": projectID}, nil, &tasks); err != nil {
		return fmt.Errorf("failed to collect project tasks: %w", err)
	}
	for _, task := range tasks {
		batch.Delete(store.CollectionTasks, task.ID)
	}

	var sprints []models.Sprint
	if err := s.store.Query(ctx, store.CollectionSprints, store.Filter{"projectId": projectID}, nil, &sprints); err != nil {
		return fmt.Errorf("failed to collect project sprints: %w", err)
	}
	for _, sprint := range sprints {
		batch.Delete(store.CollectionSprints, sprint.ID)
	}

	var channels []models.ChatChannel
	channelFilter := store.Filter{"type": models.ChannelProject, "entityId": projectID}
	if err := s.store.Query(ctx, store.CollectionChatChannels, channelFilter, nil, &channels); err != nil {
		return fmt.Errorf("failed to collect project channels: %w", err)
	}
	for _, channel := range channels {
		batch.Delete(store.CollectionChatChannels, channel.ID)

		var threads []models.ChatThread
		if err := s.store.Query(ctx, store.CollectionChatThreads, store.Filter{"channelId": channel.ID}, nil, &threads); err != nil {
			return fmt.Errorf("failed to collect channel threads: %w", err)
		}
		for _, thread := range threads {
			batch.Delete(store.CollectionChatThreads, thread.ID)

			var messages []models.ChatMessage
			if err := s.store.Query(ctx, store.CollectionChatMessages, store.Filter{"threadId": thread.ID}, nil, &messages); err != nil {
				return fmt.Errorf("failed to collect thread messages: %w", err)
			}
			for _, message := range messages {
				batch.Delete(store.CollectionChatMessages, message.ID)
			}
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete project %s and associated data: %w", projectID, err)
	}
	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted by %s", projectID, actor.ID)
	return nil
}

func (s *ProjectService) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	if err := s.store.GetOne(ctx, store.CollectionProjects, projectID, &project); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}

// GetAccessible returns the projects a user may see, newest first.
func (s *ProjectService) GetAccessible(ctx context.Context, user models.User) ([]models.Project, error) {
	var projects []models.Project
	order := &store.Order{Field: "createdAt", Desc: true}
	if err := s.store.Query(ctx, store.CollectionProjects, nil, order, &projects); err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}
	var accessible []models.Project
	for _, project := range projects {
		if HasProjectAccess(&user, &project) {
			accessible = append(accessible, project)
		}
	}
	return accessible, nil
}
