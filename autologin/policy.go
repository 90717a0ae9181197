package autologin

import "github.com/jrsteele09/go-client-portal/identity"

// IsEligibleForAutologin decides whether an autologin link may be
// minted for the given identity. Only client accounts qualify; staff
// and operator accounts authenticate interactively, and blocked
// accounts never receive links.
func IsEligibleForAutologin(ident *identity.Identity) bool {
	if ident == nil {
		return false
	}
	return ident.Kind == identity.AccountKindClient && !ident.Blocked
}
