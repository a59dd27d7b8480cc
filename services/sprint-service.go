package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

type SprintService struct {
	store         store.Store
	notifications *NotificationService
}

func NewSprintService(st store.Store, notifications *NotificationService) *SprintService {
	return &SprintService{
		store:         st,
		notifications: notifications,
	}
}

type SprintInput struct {
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	ProjectID string    `json:"projectId"`
	EpicID    *string   `json:"epicId"`
}

// CreateSprint persists a new sprint in the planned state.
func (s *SprintService) CreateSprint(ctx context.Context, actor models.User, in SprintInput) (*models.Sprint, error) {
	if !CanPerform(actor.Role, ActionManageSprints) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a sprint", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: role %s cannot create sprints", ErrPermissionDenied, actor.Role)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required to create a sprint", ErrInvalidInput)
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, fmt.Errorf("%w: end date must not be before start date", ErrInvalidInput)
	}
	if err := s.store.GetOne(ctx, store.CollectionProjects, in.ProjectID, &models.Project{}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, in.ProjectID)
		}
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}

	sprint := models.Sprint{
		Name:      in.Name,
		Goal:      in.Goal,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Status:    models.SprintPlanned,
		ProjectID: in.ProjectID,
		EpicID:    in.EpicID,
		CreatedAt: time.Now(),
	}
	id, err := s.store.Create(ctx, store.CollectionSprints, &sprint)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprint: %w", err)
	}
	sprint.ID = id
	logging.Logger.Infof("Event ID: SPRINT_CREATED, Description: Sprint %s created in project %s by %s", sprint.ID, sprint.ProjectID, actor.ID)
	return &sprint, nil
}

// UpdateSprint persists sprint changes and enforces the status lifecycle:
// planned, active, completed, forward only. Starting a sprint is rejected
// while another sprint of the same project is active, no matter where the
// update comes from. Status transitions fan out sprint_started or
// sprint_finished notifications; completion fires independent of whether
// retrospective notes are filled in.
func (s *SprintService) UpdateSprint(ctx context.Context, actor models.User, updated models.Sprint, original *models.Sprint) (*models.Sprint, error) {
	if !CanPerform(actor.Role, ActionManageSprints) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to update sprint %s", actor.ID, actor.Role, updated.ID)
		return nil, fmt.Errorf("%w: role %s cannot update sprints", ErrPermissionDenied, actor.Role)
	}
	if updated.ID == "" {
		return nil, fmt.Errorf("%w: sprint id is required", ErrInvalidInput)
	}

	if original == nil {
		var prior models.Sprint
		if err := s.store.GetOne(ctx, store.CollectionSprints, updated.ID, &prior); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: sprint %s", ErrNotFound, updated.ID)
			}
			return nil, fmt.Errorf("failed to fetch sprint: %w", err)
		}
		original = &prior
	}
	if updated.ProjectID == "" {
		updated.ProjectID = original.ProjectID
	}
	if updated.EndDate.Before(updated.StartDate) {
		return nil, fmt.Errorf("%w: end date must not be before start date", ErrInvalidInput)
	}

	if !original.Status.CanTransition(updated.Status) {
		return nil, fmt.Errorf("%w: sprint status cannot move from %s to %s", ErrInvalidInput, original.Status, updated.Status)
	}
	if updated.Status == models.SprintActive && original.Status != models.SprintActive {
		var active []models.Sprint
		filter := store.Filter{"projectId": updated.ProjectID, "status": models.SprintActive}
		if err := s.store.Query(ctx, store.CollectionSprints, filter, nil, &active); err != nil {
			return nil, fmt.Errorf("failed to check active sprints: %w", err)
		}
		for _, other := range active {
			if other.ID != updated.ID {
				return nil, fmt.Errorf("%w: sprint %s", ErrSprintAlreadyActive, other.ID)
			}
		}
	}

	fields := map[string]any{
		"name":               updated.Name,
		"goal":               updated.Goal,
		"startDate":          updated.StartDate,
		"endDate":            updated.EndDate,
		"status":             updated.Status,
		"epicId":             updated.EpicID,
		"retrospectiveNotes": updated.RetrospectiveNotes,
	}
	if err := s.store.Update(ctx, store.CollectionSprints, updated.ID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: sprint %s", ErrNotFound, updated.ID)
		}
		return nil, fmt.Errorf("failed to update sprint: %w", err)
	}

	if original.Status != updated.Status {
		var project models.Project
		if err := s.store.GetOne(ctx, store.CollectionProjects, updated.ProjectID, &project); err != nil {
			logging.Logger.Errorf("Event ID: NOTIFICATION_EMIT_FAILED, Description: Sprint status fan-out skipped, project %s not loaded: %v", updated.ProjectID, err)
			return &updated, nil
		}
		s.notifications.NotifySprintStatusChanged(ctx, actor, &updated, &project)
	}
	return &updated, nil
}

func (s *SprintService) GetByProject(ctx context.Context, projectID string) ([]models.Sprint, error) {
	var sprints []models.Sprint
	filter := store.Filter{"projectId": projectID}
	order := &store.Order{Field: "endDate", Desc: true}
	if err := s.store.Query(ctx, store.CollectionSprints, filter, order, &sprints); err != nil {
		return nil, fmt.Errorf("failed to fetch sprints: %w", err)
	}
	return sprints, nil
}

// ActiveSprint returns the project's active sprint, or nil when none is.
func (s *SprintService) ActiveSprint(ctx context.Context, projectID string) (*models.Sprint, error) {
	var sprints []models.Sprint
	filter := store.Filter{"projectId": projectID, "status": models.SprintActive}
	if err := s.store.Query(ctx, store.CollectionSprints, filter, nil, &sprints); err != nil {
		return nil, fmt.Errorf("failed to fetch active sprint: %w", err)
	}
	if len(sprints) == 0 {
		return nil, nil
	}
	return &sprints[0], nil
}
