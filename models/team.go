package models

import "time"

type Team struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	MemberIDs   []string  `json:"memberIds" bson:"memberIds"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// HasMember reports whether the given user id is in the team's member list.
func (t *Team) HasMember(userID string) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
