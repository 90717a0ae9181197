package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"

	// Portal Routes (all behind the auth gate)
	RouteDashboard  = "/"
	RouteProfile    = "/profile"
	RouteDocuments  = "/documents"
	RoutePayments   = "/payments"
	RouteQuotations = "/quotations"

	// Admin Routes
	RouteAdminAutologin = "/admin/accounts/{subjectID}/autologin"
)

// authGateExemptPrefixes lists path prefixes the auth gate never
// guards: the login page and the auth API surface must stay reachable
// for unauthenticated requests.
var authGateExemptPrefixes = []string{
	RouteLogin,
	"/auth/",
}
