package models

import "time"

type NotificationType string

const (
	NotificationProjectCreated       NotificationType = "project_created"
	NotificationTaskCreated          NotificationType = "task_created"
	NotificationTaskAssigned         NotificationType = "task_assigned"
	NotificationTaskMovedFromBacklog NotificationType = "task_moved_from_backlog"
	NotificationTaskStatusChanged    NotificationType = "task_status_changed"
	NotificationSprintStarted        NotificationType = "sprint_started"
	NotificationSprintFinished       NotificationType = "sprint_finished"
	NotificationNewChatMessage       NotificationType = "new_chat_message"
	NotificationGeneric              NotificationType = "generic"
)

// EntityType values for Notification references.
const (
	EntityTask    = "task"
	EntityProject = "project"
	EntitySprint  = "sprint"
	EntityThread  = "thread"
)

// Notification is a single per-recipient record. ActorUserID is empty for
// system-generated notifications. Records are only ever mutated by the
// mark-as-read operations.
type Notification struct {
	ID              string           `json:"id" bson:"_id,omitempty"`
	RecipientUserID string           `json:"recipientUserId" bson:"recipientUserId"`
	ActorUserID     string           `json:"actorUserId,omitempty" bson:"actorUserId,omitempty"`
	Type            NotificationType `json:"type" bson:"type"`
	Title           string           `json:"title" bson:"title"`
	Message         string           `json:"message,omitempty" bson:"message,omitempty"`
	EntityID        string           `json:"entityId,omitempty" bson:"entityId,omitempty"`
	EntityType      string           `json:"entityType,omitempty" bson:"entityType,omitempty"`
	IsRead          bool             `json:"isRead" bson:"isRead"`
	Link            string           `json:"link,omitempty" bson:"link,omitempty"`
	CreatedAt       time.Time        `json:"createdAt" bson:"createdAt"`
}
