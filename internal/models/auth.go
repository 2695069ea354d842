package models

type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleWaiter  Role = "Waiter"
	RoleKitchen Role = "Kitchen"
	RoleGuest   Role = "Guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleWaiter, RoleKitchen, RoleGuest:
		return true
	}
	return false
}

// Staff roles join a broadcast room named after the role.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleWaiter || r == RoleKitchen
}

// Actor is the identity a connection or request acts as. It is rebuilt per
// connection from a credential, or from its absence for guests.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Username string `json:"username,omitempty"`
	TabID    string `json:"tabId,omitempty"`
}

func GuestActor(id, tabID string) Actor {
	return Actor{ID: id, Role: RoleGuest, TabID: tabID}
}

// TokenClaims mirrors the payload signed by the login endpoint:
// {"user": {"id", "role", "username"}}.
type TokenClaims struct {
	User struct {
		ID       string `json:"id"`
		Role     Role   `json:"role"`
		Username string `json:"username"`
	} `json:"user"`
}
