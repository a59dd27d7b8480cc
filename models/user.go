package models

import "time"

type Role string

const (
	RoleUser          Role = "User"
	RoleSupervisor    Role = "Supervisor"
	RoleManager       Role = "Manager"
	RoleAdministrator Role = "Administrator"
)

// User is the profile record for an authenticated account. The ID matches the
// uid issued by the external auth provider; credentials are not stored here.
type User struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	Avatar    string    `json:"avatar,omitempty" bson:"avatar,omitempty"`
	TeamID    *string   `json:"teamId,omitempty" bson:"teamId,omitempty"`
	Role      Role      `json:"role" bson:"role"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
