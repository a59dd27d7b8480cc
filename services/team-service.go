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

type TeamService struct {
	store store.Store
}

func NewTeamService(st store.Store) *TeamService {
	return &TeamService{store: st}
}

type TeamInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateTeam persists a new team with an empty member list; members join
// through user updates, not at team creation.
func (s *TeamService) CreateTeam(ctx context.Context, actor models.User, in TeamInput) (*models.Team, error) {
	if !CanPerform(actor.Role, ActionManageTeams) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a team", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: only administrators can create teams", ErrPermissionDenied)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	team := models.Team{
		Name:        in.Name,
		Description: in.Description,
		MemberIDs:   []string{},
		CreatedAt:   time.Now(),
	}
	id, err := s.store.Create(ctx, store.CollectionTeams, &team)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	team.ID = id
	return &team, nil
}

func (s *TeamService) UpdateTeam(ctx context.Context, actor models.User, updated models.Team) error {
	if !CanPerform(actor.Role, ActionManageTeams) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to update team %s", actor.ID, actor.Role, updated.ID)
		return fmt.Errorf("%w: only administrators can update teams", ErrPermissionDenied)
	}
	if updated.ID == "" {
		return fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}
	fields := map[string]any{
		"name":        updated.Name,
		"description": updated.Description,
		"memberIds":   orEmpty(updated.MemberIDs),
	}
	if err := s.store.Update(ctx, store.CollectionTeams, updated.ID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: team %s", ErrNotFound, updated.ID)
		}
		return fmt.Errorf("failed to update team: %w", err)
	}
	return nil
}

// DeleteTeam removes the team and cleans every reference to it in one atomic
// batch: member users lose their teamId, tasks and projects drop the id from
// their team lists. No referencing entity is ever deleted.
func (s *TeamService) DeleteTeam(ctx context.Context, actor models.User, teamID string) error {
	if !CanPerform(actor.Role, ActionManageTeams) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to delete team %s", actor.ID, actor.Role, teamID)
		return fmt.Errorf("%w: only administrators can delete teams", ErrPermissionDenied)
	}
	if err := s.store.GetOne(ctx, store.CollectionTeams, teamID, &models.Team{}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}
		return fmt.Errorf("failed to fetch team: %w", err)
	}

	batch := s.store.Batch()
	batch.Delete(store.CollectionTeams, teamID)

	var members []models.User
	if err := s.store.Query(ctx, store.CollectionUsers, store.Filter{"teamId": teamID}, nil, &members); err != nil {
		return fmt.Errorf("failed to collect team members: %w", err)
	}
	for _, member := range members {
		batch.Update(store.CollectionUsers, member.ID, map[string]any{"teamId": nil})
	}

	var tasks []models.Task
	if err := s.store.Query(ctx, store.CollectionTasks, store.Filter{"assignedTeamIds": teamID}, nil, &tasks); err != nil {
		return fmt.Errorf("failed to collect tasks assigned to team: %w", err)
	}
	for _, task := range tasks {
		batch.Update(store.CollectionTasks, task.ID, map[string]any{
			"assignedTeamIds": removeID(task.AssignedTeamIDs, teamID),
		})
	}

	var projects []models.Project
	if err := s.store.Query(ctx, store.CollectionProjects, store.Filter{"allowedTeamIds": teamID}, nil, &projects); err != nil {
		return fmt.Errorf("failed to collect projects referencing team: %w", err)
	}
	for _, project := range projects {
		batch.Update(store.CollectionProjects, project.ID, map[string]any{
			"allowedTeamIds": removeID(project.AllowedTeamIDs, teamID),
		})
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete team %s and update references: %w", teamID, err)
	}
	logging.Logger.Infof("Event ID: TEAM_DELETED, Description: Team %s deleted by %s", teamID, actor.ID)
	return nil
}

func removeID(ids []string, target string) []string {
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			result = append(result, id)
		}
	}
	return result
}

func (s *TeamService) GetAll(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	order := &store.Order{Field: "createdAt", Desc: true}
	if err := s.store.Query(ctx, store.CollectionTeams, nil, order, &teams); err != nil {
		return nil, fmt.Errorf("failed to fetch teams: %w", err)
	}
	return teams, nil
}

func (s *TeamService) GetByID(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	if err := s.store.GetOne(ctx, store.CollectionTeams, teamID, &team); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}
		return nil, fmt.Errorf("failed to fetch team: %w", err)
	}
	return &team, nil
}
