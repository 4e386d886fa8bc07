package model

// Role is a workspace member's role.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleStaff      Role = "staff"
	RoleFreelancer Role = "freelancer"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks whether the role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleStaff, RoleFreelancer:
		return true
	}
	return false
}

// Elevated reports whether the role sees workspace-wide data regardless of
// assignment.
func (r Role) Elevated() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// Scope carries the caller identity every list query is restricted by.
// It is passed explicitly rather than read from ambient session state.
type Scope struct {
	WorkspaceID  string `json:"workspace_id"`
	UserID       string `json:"user_id,omitempty"`
	Role         Role   `json:"role,omitempty"`
	FreelancerID string `json:"freelancer_id,omitempty"` // set when the user is also a freelancer record
}
