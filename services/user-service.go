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

type UserService struct {
	store store.Store
}

func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

type UserInput struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar"`
	TeamID *string     `json:"teamId"`
	Role   models.Role `json:"role"`
}

// CreateUser persists a profile record for an account the external auth
// provider already issued. The id must be the auth uid. A team assignment is
// mirrored into the team's member list.
func (s *UserService) CreateUser(ctx context.Context, actor models.User, in UserInput) (*models.User, error) {
	if !CanPerform(actor.Role, ActionManageUsers) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to create a user profile", actor.ID, actor.Role)
		return nil, fmt.Errorf("%w: only administrators can add user profiles", ErrPermissionDenied)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("%w: auth uid is required", ErrInvalidInput)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	user := models.User{
		ID:        in.ID,
		Name:      in.Name,
		Avatar:    in.Avatar,
		TeamID:    in.TeamID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if _, err := s.store.Create(ctx, store.CollectionUsers, &user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if in.TeamID != nil {
		if err := s.addToTeam(ctx, *in.TeamID, user.ID); err != nil {
			logging.Logger.Errorf("Event ID: TEAM_SYNC_FAILED, Description: Could not add user %s to team %s: %v", user.ID, *in.TeamID, err)
		}
	}
	return &user, nil
}

func (s *UserService) addToTeam(ctx context.Context, teamID, userID string) error {
	var team models.Team
	if err := s.store.GetOne(ctx, store.CollectionTeams, teamID, &team); err != nil {
		return err
	}
	if team.HasMember(userID) {
		return nil
	}
	members := append(append([]string{}, team.MemberIDs...), userID)
	return s.store.Update(ctx, store.CollectionTeams, teamID, map[string]any{"memberIds": members})
}

func (s *UserService) removeFromTeam(ctx context.Context, teamID, userID string) error {
	var team models.Team
	if err := s.store.GetOne(ctx, store.CollectionTeams, teamID, &team); err != nil {
		return err
	}
	return s.store.Update(ctx, store.CollectionTeams, teamID, map[string]any{
		"memberIds": removeID(team.MemberIDs, userID),
	})
}

// UpdateUser edits a profile. Administrators may edit anyone including roles;
// everyone else may only edit their own profile and cannot change their role.
// A team change keeps both teams' member lists in sync.
func (s *UserService) UpdateUser(ctx context.Context, actor models.User, updated models.User) error {
	isAdmin := actor.Role == models.RoleAdministrator
	if !isAdmin && actor.ID != updated.ID {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to update profile %s", actor.ID, actor.Role, updated.ID)
		return fmt.Errorf("%w: cannot update another user's profile", ErrPermissionDenied)
	}
	if updated.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var original models.User
	if err := s.store.GetOne(ctx, store.CollectionUsers, updated.ID, &original); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, updated.ID)
		}
		return fmt.Errorf("failed to fetch user: %w", err)
	}

	role := original.Role
	if isAdmin && actor.ID != updated.ID && updated.Role != "" {
		role = updated.Role
	}

	fields := map[string]any{
		"name":   updated.Name,
		"avatar": updated.Avatar,
		"teamId": updated.TeamID,
		"role":   role,
	}
	if err := s.store.Update(ctx, store.CollectionUsers, updated.ID, fields); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	originalTeam := original.TeamID
	newTeam := updated.TeamID
	if !sameTeam(originalTeam, newTeam) {
		if originalTeam != nil {
			if err := s.removeFromTeam(ctx, *originalTeam, updated.ID); err != nil {
				logging.Logger.Errorf("Event ID: TEAM_SYNC_FAILED, Description: Could not remove user %s from team %s: %v", updated.ID, *originalTeam, err)
			}
		}
		if newTeam != nil {
			if err := s.addToTeam(ctx, *newTeam, updated.ID); err != nil {
				logging.Logger.Errorf("Event ID: TEAM_SYNC_FAILED, Description: Could not add user %s to team %s: %v", updated.ID, *newTeam, err)
			}
		}
	}
	return nil
}

func sameTeam(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteUser removes a profile and strips the id from its team's member list,
// from task assignee lists and from project allow-lists, all in one atomic
// batch. Nothing else is deleted, and an administrator cannot delete
// themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor models.User, userID string) error {
	if !CanPerform(actor.Role, ActionManageUsers) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to delete profile %s", actor.ID, actor.Role, userID)
		return fmt.Errorf("%w: only administrators can delete user profiles", ErrPermissionDenied)
	}
	if actor.ID == userID {
		return fmt.Errorf("%w: administrators cannot delete their own profile", ErrInvalidInput)
	}

	var user models.User
	if err := s.store.GetOne(ctx, store.CollectionUsers, userID, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return fmt.Errorf("failed to fetch user: %w", err)
	}

	batch := s.store.Batch()
	batch.Delete(store.CollectionUsers, userID)

	if user.TeamID != nil {
		var team models.Team
		if err := s.store.GetOne(ctx, store.CollectionTeams, *user.TeamID, &team); err == nil {
			batch.Update(store.CollectionTeams, team.ID, map[string]any{
				"memberIds": removeID(team.MemberIDs, userID),
			})
		}
	}

	var tasks []models.Task
	if err := s.store.Query(ctx, store.CollectionTasks, store.Filter{"assignedUserIds": userID}, nil, &tasks); err != nil {
		return fmt.Errorf("failed to collect tasks assigned to user: %w", err)
	}
	for _, task := range tasks {
		batch.Update(store.CollectionTasks, task.ID, map[string]any{
			"assignedUserIds": removeID(task.AssignedUserIDs, userID),
		})
	}

	var projects []models.Project
	if err := s.store.Query(ctx, store.CollectionProjects, store.Filter{"allowedUserIds": userID}, nil, &projects); err != nil {
		return fmt.Errorf("failed to collect projects referencing user: %w", err)
	}
	for _, project := range projects {
		batch.Update(store.CollectionProjects, project.ID, map[string]any{
			"allowedUserIds": removeID(project.AllowedUserIDs, userID),
		})
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete user %s and update references: %w", userID, err)
	}
	logging.Logger.Infof("Event ID: USER_DELETED, Description: User %s deleted by %s", userID, actor.ID)
	return nil
}

// AssignToTeam moves a user onto a team, or off any team when teamID is nil.
func (s *UserService) AssignToTeam(ctx context.Context, actor models.User, userID string, teamID *string) error {
	if !CanPerform(actor.Role, ActionManageTeams) {
		logging.Logger.Warnf("Event ID: PERMISSION_DENIED, Description: User %s (%s) attempted to reassign user %s", actor.ID, actor.Role, userID)
		return fmt.Errorf("%w: only administrators can assign users to teams", ErrPermissionDenied)
	}
	var user models.User
	if err := s.store.GetOne(ctx, store.CollectionUsers, userID, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return fmt.Errorf("failed to fetch user: %w", err)
	}
	user.TeamID = teamID
	return s.UpdateUser(ctx, actor, user)
}

func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.store.GetOne(ctx, store.CollectionUsers, userID, &user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (s *UserService) GetAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	order := &store.Order{Field: "name", Desc: false}
	if err := s.store.Query(ctx, store.CollectionUsers, nil, order, &users); err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, nil
}
