package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swissmarley/agile-compass/config"
	"github.com/swissmarley/agile-compass/models"
)

func TestStatusTitleResolutionOrder(t *testing.T) {
	project := &models.Project{
		BoardColumns: []models.BoardColumn{
			{ID: "todo", Title: "Queued"},
			{ID: "review", Title: "In Review"},
		},
	}

	// Project columns win over the global fallback table.
	assert.Equal(t, "Queued", config.StatusTitle("todo", project))
	assert.Equal(t, "In Review", config.StatusTitle("review", project))

	// The backlog is not a project column and resolves globally.
	assert.Equal(t, "Backlog", config.StatusTitle(config.BacklogStatusID, project))

	// Default column ids resolve globally when the project lacks them.
	assert.Equal(t, "Done", config.StatusTitle("done", project))

	// Unknown ids fall through to the raw id, never an empty string.
	assert.Equal(t, "mystery", config.StatusTitle("mystery", project))
	assert.Equal(t, "mystery", config.StatusTitle("mystery", nil))
}

func TestIssueTypeTitle(t *testing.T) {
	assert.Equal(t, "Task", config.IssueTypeTitle(models.IssueTask))
	assert.Equal(t, "Sub-task", config.IssueTypeTitle(models.IssueSubtask))
	assert.Equal(t, "Feature Request", config.IssueTypeTitle(models.IssueFeatureRequest))
	assert.Equal(t, "weird", config.IssueTypeTitle(models.IssueType("weird")))
}

func TestDefaultBoardColumns(t *testing.T) {
	ids := make([]string, 0, len(config.DefaultBoardColumns))
	for _, col := range config.DefaultBoardColumns {
		ids = append(ids, col.ID)
	}
	assert.Equal(t, []string{"todo", "inprogress", "done"}, ids)
	assert.NotContains(t, ids, config.BacklogStatusID, "the backlog is never a board column")
}
