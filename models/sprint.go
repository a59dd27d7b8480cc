package models

import "time"

type SprintStatus string

const (
	SprintPlanned   SprintStatus = "planned"
	SprintActive    SprintStatus = "active"
	SprintCompleted SprintStatus = "completed"
)

// sprintStatusRank orders the sprint lifecycle; transitions never go backwards.
var sprintStatusRank = map[SprintStatus]int{
	SprintPlanned:   0,
	SprintActive:    1,
	SprintCompleted: 2,
}

// CanTransition reports whether a sprint may move from one status to another.
// Staying in the same status is allowed, regressing is not.
func (s SprintStatus) CanTransition(to SprintStatus) bool {
	fromRank, ok := sprintStatusRank[s]
	if !ok {
		return false
	}
	toRank, ok := sprintStatusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

type Sprint struct {
	ID                 string       `json:"id" bson:"_id,omitempty"`
	Name               string       `json:"name" bson:"name"`
	Goal               string       `json:"goal,omitempty" bson:"goal,omitempty"`
	StartDate          time.Time    `json:"startDate" bson:"startDate"`
	EndDate            time.Time    `json:"endDate" bson:"endDate"`
	Status             SprintStatus `json:"status" bson:"status"`
	ProjectID          string       `json:"projectId" bson:"projectId"`
	EpicID             *string      `json:"epicId,omitempty" bson:"epicId,omitempty"`
	RetrospectiveNotes string       `json:"retrospectiveNotes,omitempty" bson:"retrospectiveNotes,omitempty"`
	CreatedAt          time.Time    `json:"createdAt" bson:"createdAt"`
}
