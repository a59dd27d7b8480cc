package models

import "time"

type IssueType string

const (
	IssueTask           IssueType = "task"
	IssueStory          IssueType = "story"
	IssueBug            IssueType = "bug"
	IssueEpic           IssueType = "epic"
	IssueSubtask        IssueType = "subtask"
	IssueFeatureRequest IssueType = "feature_request"
)

// Task is any issue on the board or in the backlog, regardless of issue type.
// Status is either a board column id of the owning project or the fixed
// backlog id. Subtasks are free-text checklist lines, not separate documents.
type Task struct {
	ID              string     `json:"id" bson:"_id,omitempty"`
	Title           string     `json:"title" bson:"title"`
	Description     string     `json:"description,omitempty" bson:"description,omitempty"`
	Status          string     `json:"status" bson:"status"`
	IssueType       IssueType  `json:"issueType" bson:"issueType"`
	AssignedUserIDs []string   `json:"assignedUserIds" bson:"assignedUserIds"`
	AssignedTeamIDs []string   `json:"assignedTeamIds" bson:"assignedTeamIds"`
	DueDate         *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Subtasks        []string   `json:"subtasks,omitempty" bson:"subtasks,omitempty"`
	StoryPoints     *float64   `json:"storyPoints,omitempty" bson:"storyPoints,omitempty"`
	SprintID        *string    `json:"sprintId,omitempty" bson:"sprintId,omitempty"`
	ProjectID       string     `json:"projectId" bson:"projectId"`
	ParentStoryID   *string    `json:"parentStoryId,omitempty" bson:"parentStoryId,omitempty"`
	EpicID          *string    `json:"epicId,omitempty" bson:"epicId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
}

// NormalizeLinks applies the issue nesting rules to a pair of parent links and
// returns the pair that may actually be persisted for the given issue type.
// Epics are roots and carry no links. Stories may link to an epic but never
// nest under another story. Everything else may link to a parent story but
// never directly to an epic. Applying it twice yields the same result, and a
// type change simply drops links the new type cannot carry.
func NormalizeLinks(issueType IssueType, parentStoryID, epicID *string) (*string, *string) {
	switch issueType {
	case IssueEpic:
		return nil, nil
	case IssueStory:
		return nil, epicID
	case IssueTask, IssueBug, IssueSubtask, IssueFeatureRequest:
		return parentStoryID, nil
	}
	return parentStoryID, epicID
}
