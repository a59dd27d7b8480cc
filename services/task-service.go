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

type TaskService struct {
	store         store.Store
	notifications *NotificationService
}

func NewTaskService(st store.Store, notifications *NotificationService) *TaskService {
	return &TaskService{
		store:         st,
		notifications: notifications,
	}
}

// TaskInput carries the caller-supplied fields for creating a task.
type TaskInput struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Status          string           `json:"status"`
	IssueType       models.IssueType `json:"issueType"`
	AssignedUserIDs []string         `json:"assignedUserIds"`
	AssignedTeamIDs []string         `json:"assignedTeamIds"`
	DueDate         *time.Time       `json:"dueDate"`
	Subtasks        []string         `json:"subtasks"`
	StoryPoints     *float64         `json:"storyPoints"`
	SprintID        *string          `json:"sprintId"`
	ParentStoryID   *string          `json:"parentStoryId"`
	EpicID          *string          `json:"epicId"`
	ProjectID       string           `json:"projectId"`
}

// validStatus reports whether a status id belongs to the project's effective
// visible status set (its board columns plus the fixed backlog).
func validStatus(statusID string, project *models.Project) bool {
	if statusID == config.BacklogStatusID {
		return true
	}
	for _, col := range project.BoardColumns {
		if col.ID == statusID {
			return true
		}
	}
	return false
}

// checkSprint verifies a sprint reference points at a sprint of the same
// project.
func (s *TaskService) checkSprint(ctx context.Context, sprintID, projectID string) error {
	var sprint models.Sprint
	if err := s.store.GetOne(ctx, store.CollectionSprints, sprintID, &sprint); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: sprint %s does not exist", ErrInvalidInput, sprintID)
		}
		return fmt.Errorf("failed to fetch sprint: %w", err)
	}
	if sprint.ProjectID != projectID {
		return fmt.Errorf("%w: sprint %s belongs to a different project", ErrInvalidInput, sprintID)
	}
	return nil
}

// CreateTask validates and persists a new task, then fans out task_created
// notifications. Link fields are normalized against the issue type before the
// write, so an epic never carries parent links and a story never nests.
func (s *TaskService) CreateTask(ctx context.Context, actor models.User, in TaskInput) (*models.Task, error) {
	if !CanPerform(actor.Role, ActionManageTasks) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a task", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: role %s cannot create tasks", ErrPermissionDenied, actor.Role)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.ProjectID == "" {
		return nil, fmt.Errorf("%w: no project is selected or specified", ErrInvalidInput)
	}

	var project models.Project
	if err := s.store.GetOne(ctx, store.CollectionProjects, in.ProjectID, &project); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, in.ProjectID)
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	if in.Status == "" {
		in.Status = config.BacklogStatusID
	}
	if !validStatus(in.Status, &project) {
		return nil, fmt.Errorf("%w: status %q is not a board column of project %s", ErrInvalidInput, in.Status, project.ID)
	}
	if in.IssueType == "" {
		in.IssueType = config.DefaultIssueType
	}
	if in.StoryPoints != nil && *in.StoryPoints < 0 {
		return nil, fmt.Errorf("%w: story points must not be negative", ErrInvalidInput)
	}
	if in.SprintID != nil {
		if err := s.checkSprint(ctx, *in.SprintID, in.ProjectID); err != nil {
			return nil, err
		}
	}

	parentStoryID, epicID := models.NormalizeLinks(in.IssueType, in.ParentStoryID, in.EpicID)

	task := models.Task{
		Title:           in.Title,
		Description:     in.Description,
		Status:          in.Status,
		IssueType:       in.IssueType,
		AssignedUserIDs: in.AssignedUserIDs,
		AssignedTeamIDs: in.AssignedTeamIDs,
		DueDate:         in.DueDate,
		Subtasks:        in.Subtasks,
		StoryPoints:     in.StoryPoints,
		SprintID:        in.SprintID,
		ProjectID:       in.ProjectID,
		ParentStoryID:   parentStoryID,
		EpicID:          epicID,
		CreatedAt:       time.Now(),
	}
	if task.AssignedUserIDs == nil {
		task.AssignedUserIDs = []string{}
	}
	if task.AssignedTeamIDs == nil {
		task.AssignedTeamIDs = []string{}
	}

	id, err := s.store.Create(ctx, store.CollectionTasks, &task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	task.ID = id
	logging.Logger.Infof("Event ID: TASK_CREATED, Description: Task %s created in project %s by %s", task.ID, task.ProjectID, actor.ID)

	s.notifications.NotifyTaskCreated(ctx, actor, &task, &project)
	return &task, nil
}

// UpdateTask persists the new task state, diffs it against the prior state and
// fans out assignment and status-change notifications. When the prior state
// cannot be found the diff degrades: every current assignee counts as newly
// assigned and no status change is classified.
func (s *TaskService) UpdateTask(ctx context.Context, actor models.User, updated models.Task, original *models.Task) (*models.Task, error) {
	if !CanPerform(actor.Role, ActionManageTasks) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to update task %s", actor.ID, actor.Role, updated.ID)
		return nil, fmt.Errorf("%w: role %s cannot update tasks", ErrPermissionDenied, actor.Role)
	}
	if updated.ID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	if updated.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}

	var project models.Project
	if err := s.store.GetOne(ctx, store.CollectionProjects, updated.ProjectID, &project); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, updated.ProjectID)
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	if original == nil {
		var prior models.Task
		err := s.store.GetOne(ctx, store.CollectionTasks, updated.ID, &prior)
		switch {
		case err == nil:
			original = &prior
		case errors.Is(err, store.ErrNotFound):
			// Concurrently deleted or never seen; continue without a diff base.
		default:
			return nil, fmt.Errorf("failed to fetch task: %w", err)
		}
	}

	if updated.IssueType == "" {
		updated.IssueType = config.DefaultIssueType
	}
	if updated.AssignedUserIDs == nil {
		updated.AssignedUserIDs = []string{}
	}
	if updated.AssignedTeamIDs == nil {
		updated.AssignedTeamIDs = []string{}
	}
	if !validStatus(updated.Status, &project) {
		return nil, fmt.Errorf("%w: status %q is not a board column of project %s", ErrInvalidInput, updated.Status, project.ID)
	}
	if updated.StoryPoints != nil && *updated.StoryPoints < 0 {
		return nil, fmt.Errorf("%w: story points must not be negative", ErrInvalidInput)
	}
	if updated.SprintID != nil {
		if err := s.checkSprint(ctx, *updated.SprintID, updated.ProjectID); err != nil {
			return nil, err
		}
	}
	updated.ParentStoryID, updated.EpicID = models.NormalizeLinks(updated.IssueType, updated.ParentStoryID, updated.EpicID)

	fields := map[string]any{
		"title":           updated.Title,
		"description":     updated.Description,
		"status":          updated.Status,
		"issueType":       updated.IssueType,
		"assignedUserIds": updated.AssignedUserIDs,
		"assignedTeamIds": updated.AssignedTeamIDs,
		"dueDate":         updated.DueDate,
		"subtasks":        updated.Subtasks,
		"storyPoints":     updated.StoryPoints,
		"sprintId":        updated.SprintID,
		"projectId":       updated.ProjectID,
		"parentStoryId":   updated.ParentStoryID,
		"epicId":          updated.EpicID,
	}
	if err := s.store.Update(ctx, store.CollectionTasks, updated.ID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, updated.ID)
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.notifications.NotifyTaskUpdated(ctx, actor, original, &updated, &project)
	return &updated, nil
}

// AssignToSprint moves a task onto a sprint or back to the unscheduled pool
// (nil sprint id).
func (s *TaskService) AssignToSprint(ctx context.Context, actor models.User, taskID string, sprintID *string) error {
	if !CanPerform(actor.Role, ActionManageTasks) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to assign task %s to a sprint", actor.ID, actor.Role, taskID)
		return fmt.Errorf("%w: role %s cannot assign tasks to sprints", ErrPermissionDenied, actor.Role)
	}
	var task models.Task
	if err := s.store.GetOne(ctx, store.CollectionTasks, taskID, &task); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
		}
		return fmt.Errorf("failed to fetch task: %w", err)
	}
	if sprintID != nil {
		if err := s.checkSprint(ctx, *sprintID, task.ProjectID); err != nil {
			return err
		}
	}
	var value any
	if sprintID != nil {
		value = *sprintID
	}
	if err := s.store.Update(ctx, store.CollectionTasks, taskID, map[string]any{"sprintId": value}); err != nil {
		return fmt.Errorf("failed to assign task to sprint: %w", err)
	}
	return nil
}

func (s *TaskService) GetByID(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.store.GetOne(ctx, store.CollectionTasks, taskID, &task); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to fetch task: %w", err)
	}
	return &task, nil
}

func (s *TaskService) GetByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	var tasks []models.Task
	filter := store.Filter{"projectId": projectID}
	order := &store.Order{Field: "createdAt", Desc: true}
	if err := s.store.Query(ctx, store.CollectionTasks, filter, order, &tasks); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return tasks, nil
}
