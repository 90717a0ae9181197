package identity

import "time"

// AccountKind categorises portal accounts. Autologin links may only be
// minted for client accounts; staff and operators always authenticate
// interactively.
type AccountKind string

const (
	AccountKindClient   AccountKind = "client"
	AccountKindStaff    AccountKind = "staff"
	AccountKindOperator AccountKind = "operator"
)

type RoleType string

const (
	RoleAdmin RoleType = "admin"
)

// Identity is the portal's view of a subject held by the external
// identity backend.
type Identity struct {
	ID      string
	Email   string
	Name    string
	Kind    AccountKind
	Roles   []RoleType
	Blocked bool
}

func (i *Identity) HasRole(role RoleType) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsOperator reports whether the identity may use the operator surface
// (issuing autologin links). Always derived server-side from a trusted
// session, never from client-asserted state.
func (i *Identity) IsOperator() bool {
	return i.Kind == AccountKindOperator || i.HasRole(RoleAdmin)
}

// Session is an authenticated credential minted by the identity
// backend: an access/refresh token pair with a fixed expiry.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
