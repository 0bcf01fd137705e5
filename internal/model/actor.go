// internal/model/actor.go
package model

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Actor is the verified caller identity supplied by the auth layer.
type Actor struct {
	ID   int  `json:"id"`
	Role Role `json:"role"`
}

func (a Actor) SuperAdmin() bool { return a.Role == RoleSuperAdmin }

// CanManage reports whether the actor may edit or delete a campaign owned
// by ownerID: superadmins manage anything, admins only their own.
func (a Actor) CanManage(ownerID int) bool {
	return a.SuperAdmin() || (a.Role == RoleAdmin && a.ID == ownerID)
}
