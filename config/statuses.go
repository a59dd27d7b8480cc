// Package config holds the fixed lookup tables for task statuses, issue types
// and sprint statuses. It is the single source of truth for display titles;
// both the notification templates and any presentation layer resolve through
// it rather than carrying their own copies.
package config

import "github.com/swissmarley/agile-compass/models"

// BacklogStatusID is the one status every project has that is not a board
// column. It cannot be renamed or removed per project.
const BacklogStatusID = "backlog"

// DefaultIssueType is applied when a task is created without an issue type.
const DefaultIssueType = models.IssueTask

// DefaultBoardColumns is the column set assigned to a newly created project.
var DefaultBoardColumns = []models.BoardColumn{
	{ID: "todo", Title: "To Do"},
	{ID: "inprogress", Title: "In Progress"},
	{ID: "done", Title: "Done"},
}

type StatusInfo struct {
	ID            string
	Title         string
	IsBoardColumn bool
}

// AllTaskStatuses is the global fallback table: it covers the backlog and the
// default column ids so titles resolve even for projects created before
// custom columns existed.
var AllTaskStatuses = []StatusInfo{
	{ID: BacklogStatusID, Title: "Backlog", IsBoardColumn: false},
	{ID: "todo", Title: "To Do", IsBoardColumn: true},
	{ID: "inprogress", Title: "In Progress", IsBoardColumn: true},
	{ID: "done", Title: "Done", IsBoardColumn: true},
}

type IssueTypeInfo struct {
	ID    models.IssueType
	Title string
	Icon  string
}

var IssueTypes = []IssueTypeInfo{
	{ID: models.IssueTask, Title: "Task", Icon: "IssueTask"},
	{ID: models.IssueStory, Title: "Story", Icon: "IssueStory"},
	{ID: models.IssueBug, Title: "Bug", Icon: "IssueBug"},
	{ID: models.IssueEpic, Title: "Epic", Icon: "IssueEpic"},
	{ID: models.IssueSubtask, Title: "Sub-task", Icon: "IssueSubtask"},
	{ID: models.IssueFeatureRequest, Title: "Feature Request", Icon: "IssueFeatureRequest"},
}

type SprintStatusInfo struct {
	ID    models.SprintStatus
	Title string
}

var SprintStatuses = []SprintStatusInfo{
	{ID: models.SprintPlanned, Title: "Planned"},
	{ID: models.SprintActive, Title: "Active"},
	{ID: models.SprintCompleted, Title: "Completed"},
}

// StatusTitle resolves a status id to its display title. Lookup order: the
// project's own board columns, then the global fallback table, then the raw
// id itself. It never returns an empty string.
func StatusTitle(statusID string, project *models.Project) string {
	if project != nil {
		for _, col := range project.BoardColumns {
			if col.ID == statusID {
				return col.Title
			}
		}
	}
	for _, s := range AllTaskStatuses {
		if s.ID == statusID {
			return s.Title
		}
	}
	return statusID
}

// IssueTypeTitle resolves an issue type to its display title, falling back to
// the raw value for unknown types.
func IssueTypeTitle(issueType models.IssueType) string {
	for _, it := range IssueTypes {
		if it.ID == issueType {
			return it.Title
		}
	}
	return string(issueType)
}
