package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/swissmarley/agile-compass/config"
	"github.com/swissmarley/agile-compass/logging"
	"github.com/swissmarley/agile-compass/models"
	"github.com/swissmarley/agile-compass/store"
)

// NotificationService resolves the recipient set for every mutation event and
// writes one notification document per recipient. Emission is best-effort: a
// failed write is logged and swallowed, never surfaced to the mutation that
// triggered it. The store writes go through a circuit breaker so a struggling
// notifications collection cannot slow every mutation down.
type NotificationService struct {
	store   store.Store
	breaker *gobreaker.CircuitBreaker
}

func NewNotificationService(st store.Store) *NotificationService {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifications-cb",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
	return &NotificationService{
		store:   st,
		breaker: breaker,
	}
}

// Event describes a single mutation for recipient resolution. Project is nil
// only for events without a project scope (general chat channels), which skips
// the access filter.
type Event struct {
	Type    models.NotificationType
	ActorID string
	Project *models.Project

	AssignedUserIDs []string
	AssignedTeamIDs []string
	PreviousUserIDs []string
	PreviousTeamIDs []string

	// NewAssigneesOnly restricts candidates to users who were not assigned
	// before this mutation (directly or through a newly assigned team).
	NewAssigneesOnly bool

	// Participants are chat thread posters plus the thread creator.
	Participants []string

	// IncludeLeadership adds every Administrator and Manager as an implicit
	// stakeholder of the event.
	IncludeLeadership bool
}

// directory is a snapshot of users and teams loaded once per fan-out.
type directory struct {
	users map[string]*models.User
	teams map[string]*models.Team
}

func (ns *NotificationService) loadDirectory(ctx context.Context) (*directory, error) {
	var users []models.User
	if err := ns.store.Query(ctx, store.CollectionUsers, nil, nil, &users); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	var teams []models.Team
	if err := ns.store.Query(ctx, store.CollectionTeams, nil, nil, &teams); err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	dir := &directory{
		users: make(map[string]*models.User, len(users)),
		teams: make(map[string]*models.Team, len(teams)),
	}
	for i := range users {
		dir.users[users[i].ID] = &users[i]
	}
	for i := range teams {
		dir.teams[teams[i].ID] = &teams[i]
	}
	return dir, nil
}

// ResolveRecipients computes the deduplicated, access-filtered recipient set
// for an event. The actor is never a recipient.
func (ns *NotificationService) ResolveRecipients(ctx context.Context, event Event) ([]string, error) {
	dir, err := ns.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}
	return ns.resolveWith(dir, event), nil
}

func (ns *NotificationService) resolveWith(dir *directory, event Event) []string {
	candidates := make(map[string]bool)

	if event.NewAssigneesOnly {
		prevUsers := toSet(event.PreviousUserIDs)
		prevTeams := toSet(event.PreviousTeamIDs)
		currUsers := toSet(event.AssignedUserIDs)
		for _, uid := range event.AssignedUserIDs {
			if !prevUsers[uid] {
				candidates[uid] = true
			}
		}
		for _, teamID := range event.AssignedTeamIDs {
			if prevTeams[teamID] {
				continue
			}
			team := dir.teams[teamID]
			if team == nil {
				continue
			}
			for _, memberID := range team.MemberIDs {
				if !prevUsers[memberID] && !currUsers[memberID] {
					candidates[memberID] = true
				}
			}
		}
	} else {
		for _, uid := range event.AssignedUserIDs {
			candidates[uid] = true
		}
		for _, uid := range event.PreviousUserIDs {
			candidates[uid] = true
		}
		for _, teamID := range append(append([]string{}, event.AssignedTeamIDs...), event.PreviousTeamIDs...) {
			team := dir.teams[teamID]
			if team == nil {
				continue
			}
			for _, memberID := range team.MemberIDs {
				candidates[memberID] = true
			}
		}
		for _, uid := range event.Participants {
			candidates[uid] = true
		}
	}

	if event.IncludeLeadership {
		for _, user := range dir.users {
			if user.Role == models.RoleAdministrator || user.Role == models.RoleManager {
				candidates[user.ID] = true
			}
		}
	}

	delete(candidates, event.ActorID)

	var recipients []string
	for uid := range candidates {
		user := dir.users[uid]
		if user == nil {
			continue
		}
		if event.Project != nil && !HasProjectAccess(user, event.Project) {
			continue
		}
		recipients = append(recipients, uid)
	}
	sort.Strings(recipients)
	return recipients
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// emit writes a single notification record. Failures are logged and dropped.
func (ns *NotificationService) emit(ctx context.Context, notification models.Notification) {
	if notification.RecipientUserID == "" {
		logging.Logger.Warnf("Event ID: NOTIFICATION_SKIPPED, Description: Skipping notification without recipient, type=%s", notification.Type)
		return
	}
	notification.IsRead = false
	notification.CreatedAt = time.Now()
	_, err := ns.breaker.Execute(func() (any, error) {
		return ns.store.Create(ctx, store.CollectionNotifications, &notification)
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_EMIT_FAILED, Description: Failed to create %s notification for %s: %v", notification.Type, notification.RecipientUserID, err)
	}
}

func actorName(actor models.User) string {
	if actor.Name == "" {
		return "Someone"
	}
	return actor.Name
}

// NotifyTaskCreated fans out a task_created notification to the task's
// assignees, their team members and leadership.
func (ns *NotificationService) NotifyTaskCreated(ctx context.Context, actor models.User, task *models.Task, project *models.Project) {
	recipients, err := ns.ResolveRecipients(ctx, Event{
		Type:              models.NotificationTaskCreated,
		ActorID:           actor.ID,
		Project:           project,
		AssignedUserIDs:   task.AssignedUserIDs,
		AssignedTeamIDs:   task.AssignedTeamIDs,
		IncludeLeadership: true,
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: task_created fan-out skipped: %v", err)
		return
	}

	issueTitle := config.IssueTypeTitle(task.IssueType)
	link := fmt.Sprintf("/dashboard?taskId=%s&projectId=%s", task.ID, task.ProjectID)
	for _, uid := range recipients {
		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     actor.ID,
			Type:            models.NotificationTaskCreated,
			Title:           fmt.Sprintf("New %s in %q: %s", issueTitle, project.Name, task.Title),
			Message:         fmt.Sprintf("%s created the %s %q.", actorName(actor), strings.ToLower(issueTitle), task.Title),
			EntityID:        task.ID,
			EntityType:      models.EntityTask,
			Link:            link,
		})
	}
}

// NotifyTaskUpdated fans out task_assigned notifications to newly assigned
// users and, when the status changed, the matching status-change notification
// to current and previous assignees plus leadership. A nil original means the
// prior state was lost; the diff degrades to treating every current assignee
// as newly assigned and no status change can be classified.
func (ns *NotificationService) NotifyTaskUpdated(ctx context.Context, actor models.User, original, updated *models.Task, project *models.Project) {
	dir, err := ns.loadDirectory(ctx)
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: task update fan-out skipped: %v", err)
		return
	}

	var prevUserIDs, prevTeamIDs []string
	if original != nil {
		prevUserIDs = original.AssignedUserIDs
		prevTeamIDs = original.AssignedTeamIDs
	}

	issueTitle := config.IssueTypeTitle(updated.IssueType)
	boardLink := fmt.Sprintf("/dashboard?taskId=%s&projectId=%s", updated.ID, updated.ProjectID)

	newAssignees := ns.resolveWith(dir, Event{
		Type:             models.NotificationTaskAssigned,
		ActorID:          actor.ID,
		Project:          project,
		AssignedUserIDs:  updated.AssignedUserIDs,
		AssignedTeamIDs:  updated.AssignedTeamIDs,
		PreviousUserIDs:  prevUserIDs,
		PreviousTeamIDs:  prevTeamIDs,
		NewAssigneesOnly: true,
	})
	for _, uid := range newAssignees {
		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     actor.ID,
			Type:            models.NotificationTaskAssigned,
			Title:           fmt.Sprintf("Task Assigned in %q: %s", project.Name, updated.Title),
			Message:         fmt.Sprintf("%s assigned you to the %s %q.", actorName(actor), strings.ToLower(issueTitle), updated.Title),
			EntityID:        updated.ID,
			EntityType:      models.EntityTask,
			Link:            boardLink,
		})
	}

	if original == nil || original.Status == updated.Status {
		return
	}

	oldStatusTitle := config.StatusTitle(original.Status, project)
	newStatusTitle := config.StatusTitle(updated.Status, project)
	wasBacklog := original.Status == config.BacklogStatusID
	isBacklog := updated.Status == config.BacklogStatusID

	var notifType models.NotificationType
	var title, message, link string
	switch {
	case wasBacklog && !isBacklog:
		notifType = models.NotificationTaskMovedFromBacklog
		title = fmt.Sprintf("Task to Board in %q: %s", project.Name, updated.Title)
		message = fmt.Sprintf("Task %q moved from Backlog to %q.", updated.Title, newStatusTitle)
		link = boardLink
	case isBacklog && !wasBacklog:
		notifType = models.NotificationTaskMovedFromBacklog
		title = fmt.Sprintf("Task to Backlog in %q: %s", project.Name, updated.Title)
		message = fmt.Sprintf("Task %q returned to Backlog from %q.", updated.Title, oldStatusTitle)
		link = fmt.Sprintf("/backlog?taskId=%s&projectId=%s", updated.ID, updated.ProjectID)
	default:
		notifType = models.NotificationTaskStatusChanged
		title = fmt.Sprintf("Task Status Change in %q: %s", project.Name, updated.Title)
		message = fmt.Sprintf("Status of task %q changed from %q to %q.", updated.Title, oldStatusTitle, newStatusTitle)
		link = boardLink
	}

	recipients := ns.resolveWith(dir, Event{
		Type:              notifType,
		ActorID:           actor.ID,
		Project:           project,
		AssignedUserIDs:   updated.AssignedUserIDs,
		AssignedTeamIDs:   updated.AssignedTeamIDs,
		PreviousUserIDs:   prevUserIDs,
		PreviousTeamIDs:   prevTeamIDs,
		IncludeLeadership: true,
	})
	for _, uid := range recipients {
		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     actor.ID,
			Type:            notifType,
			Title:           title,
			Message:         message,
			EntityID:        updated.ID,
			EntityType:      models.EntityTask,
			Link:            link,
		})
	}
}

// NotifyProjectCreated fans out project_created notifications. Recipients on
// the allow-lists get the "added to project" wording; leadership that only
// sees the project through its role gets the "new project created" variant.
func (ns *NotificationService) NotifyProjectCreated(ctx context.Context, actor models.User, project *models.Project) {
	dir, err := ns.loadDirectory(ctx)
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: project_created fan-out skipped: %v", err)
		return
	}

	recipients := ns.resolveWith(dir, Event{
		Type:              models.NotificationProjectCreated,
		ActorID:           actor.ID,
		Project:           project,
		AssignedUserIDs:   project.AllowedUserIDs,
		AssignedTeamIDs:   project.AllowedTeamIDs,
		IncludeLeadership: true,
	})

	allowedUsers := toSet(project.AllowedUserIDs)
	inAllowedTeam := func(uid string) bool {
		for _, teamID := range project.AllowedTeamIDs {
			if team := dir.teams[teamID]; team != nil && team.HasMember(uid) {
				return true
			}
		}
		return false
	}

	link := fmt.Sprintf("/dashboard?projectId=%s", project.ID)
	for _, uid := range recipients {
		title := fmt.Sprintf("Added to Project: %s", project.Name)
		message := fmt.Sprintf("%s added you to the new project: %q.", actorName(actor), project.Name)

		user := dir.users[uid]
		leadership := user != nil && (user.Role == models.RoleAdministrator || user.Role == models.RoleManager)
		if leadership && !allowedUsers[uid] && !inAllowedTeam(uid) {
			title = fmt.Sprintf("New Project Created: %s", project.Name)
			message = fmt.Sprintf("%s created a new project: %q. You have access.", actorName(actor), project.Name)
		}

		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     actor.ID,
			Type:            models.NotificationProjectCreated,
			Title:           title,
			Message:         message,
			EntityID:        project.ID,
			EntityType:      models.EntityProject,
			Link:            link,
		})
	}
}

// NotifySprintStatusChanged fans out sprint_started or sprint_finished to the
// project's allow-listed users, their teams and leadership. It fires on the
// transition itself, independent of retrospective notes.
func (ns *NotificationService) NotifySprintStatusChanged(ctx context.Context, actor models.User, sprint *models.Sprint, project *models.Project) {
	var notifType models.NotificationType
	var title, message string
	switch sprint.Status {
	case models.SprintActive:
		notifType = models.NotificationSprintStarted
		title = fmt.Sprintf("Sprint Started: %s", sprint.Name)
		message = fmt.Sprintf("Sprint %q for project %q has started.", sprint.Name, project.Name)
	case models.SprintCompleted:
		notifType = models.NotificationSprintFinished
		title = fmt.Sprintf("Sprint Finished: %s", sprint.Name)
		message = fmt.Sprintf("Sprint %q for project %q has finished.", sprint.Name, project.Name)
	default:
		return
	}

	recipients, err := ns.ResolveRecipients(ctx, Event{
		Type:              notifType,
		ActorID:           actor.ID,
		Project:           project,
		AssignedUserIDs:   project.AllowedUserIDs,
		AssignedTeamIDs:   project.AllowedTeamIDs,
		IncludeLeadership: true,
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: %s fan-out skipped: %v", notifType, err)
		return
	}

	link := fmt.Sprintf("/sprints?projectId=%s", sprint.ProjectID)
	for _, uid := range recipients {
		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     actor.ID,
			Type:            notifType,
			Title:           title,
			Message:         message,
			EntityID:        sprint.ID,
			EntityType:      models.EntitySprint,
			Link:            link,
		})
	}
}

// NotifyChatMessage fans out new_chat_message to everyone who has posted in
// the thread plus its creator. When the channel resolves to a project, every
// participant is access-checked against it; general channels notify all
// participants.
func (ns *NotificationService) NotifyChatMessage(ctx context.Context, sender models.User, thread *models.ChatThread, project *models.Project, participants []string) {
	recipients, err := ns.ResolveRecipients(ctx, Event{
		Type:         models.NotificationNewChatMessage,
		ActorID:      sender.ID,
		Project:      project,
		Participants: participants,
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: RECIPIENT_RESOLUTION_FAILED, Description: new_chat_message fan-out skipped: %v", err)
		return
	}

	link := fmt.Sprintf("/chat?channelId=%s&threadId=%s", thread.ChannelID, thread.ID)
	for _, uid := range recipients {
		ns.emit(ctx, models.Notification{
			RecipientUserID: uid,
			ActorUserID:     sender.ID,
			Type:            models.NotificationNewChatMessage,
			Title:           fmt.Sprintf("New Message in %q", thread.Title),
			Message:         fmt.Sprintf("%s sent a message.", actorName(sender)),
			EntityID:        thread.ID,
			EntityType:      models.EntityThread,
			Link:            link,
		})
	}
}

// GetForUser returns a user's notifications, newest first.
func (ns *NotificationService) GetForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	var notifications []models.Notification
	filter := store.Filter{"recipientUserId": userID}
	order := &store.Order{Field: "createdAt", Desc: true}
	if err := ns.store.Query(ctx, store.CollectionNotifications, filter, order, &notifications); err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, nil
}

// MarkAsRead marks a single notification as read.
func (ns *NotificationService) MarkAsRead(ctx context.Context, notificationID string) error {
	err := ns.store.Update(ctx, store.CollectionNotifications, notificationID, map[string]any{"isRead": true})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: notification %s", ErrNotFound, notificationID)
	}
	return err
}

// MarkAllAsRead marks every unread notification of a user as read in one
// batch.
func (ns *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	var unread []models.Notification
	filter := store.Filter{"recipientUserId": userID, "isRead": false}
	if err := ns.store.Query(ctx, store.CollectionNotifications, filter, nil, &unread); err != nil {
		return fmt.Errorf("failed to fetch unread notifications: %w", err)
	}
	if len(unread) == 0 {
		return nil
	}
	batch := ns.store.Batch()
	for _, n := range unread {
		batch.Update(store.CollectionNotifications, n.ID, map[string]any{"isRead": true})
	}
	return batch.Commit(ctx)
}
