package models

import "time"

// BoardColumn is one visible status column on a project's kanban board.
type BoardColumn struct {
	ID    string `json:"id" bson:"id"`
	Title string `json:"title" bson:"title"`
}

type Project struct {
	ID             string        `json:"id" bson:"_id,omitempty"`
	Name           string        `json:"name" bson:"name"`
	Description    string        `json:"description,omitempty" bson:"description,omitempty"`
	BoardColumns   []BoardColumn `json:"boardColumns" bson:"boardColumns"`
	AllowedUserIDs []string      `json:"allowedUserIds" bson:"allowedUserIds"`
	AllowedTeamIDs []string      `json:"allowedTeamIds" bson:"allowedTeamIds"`
	CreatedAt      time.Time     `json:"createdAt" bson:"createdAt"`
}
