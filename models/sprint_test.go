package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swissmarley/agile-compass/models"
)

func TestSprintStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.SprintStatus
		ok       bool
	}{
		{models.SprintPlanned, models.SprintPlanned, true},
		{models.SprintPlanned, models.SprintActive, true},
		{models.SprintPlanned, models.SprintCompleted, true},
		{models.SprintActive, models.SprintActive, true},
		{models.SprintActive, models.SprintCompleted, true},
		{models.SprintActive, models.SprintPlanned, false},
		{models.SprintCompleted, models.SprintCompleted, true},
		{models.SprintCompleted, models.SprintActive, false},
		{models.SprintCompleted, models.SprintPlanned, false},
		{models.SprintPlanned, models.SprintStatus("archived"), false},
		{models.SprintStatus(""), models.SprintActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
