package user

import (
	"time"
)

// Role is a closed set. Unrecognized values parse to RoleUnknown instead
// of silently defaulting, so data-quality issues stay visible in analytics.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleDesigner  Role = "designer"
	RoleQA        Role = "qa"
	RoleUnknown   Role = "unknown"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:     {},
	RoleManager:   {},
	RoleDeveloper: {},
	RoleDesigner:  {},
	RoleQA:        {},
}

// ParseRole maps a raw role string onto the closed Role set.
func ParseRole(raw string) Role {
	r := Role(raw)
	if _, ok := knownRoles[r]; ok {
		return r
	}
	return RoleUnknown
}

// Roles lists the known roles in a stable order, RoleUnknown last.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleDeveloper, RoleDesigner, RoleQA, RoleUnknown}
}

type User struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	Email     string    `json:"email" gorm:"column:email;uniqueIndex;not null"`
	Role      Role      `json:"role" gorm:"column:role;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
