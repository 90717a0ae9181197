package server

import "net/http"

func (s *Server) initRoutes() {
	// Auth surface (exempt from the gate, still bridged)
	s.RegisterRouteHandler("GET "+RouteLogin, s.portalChain(s.LoginPageHandler()))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, s.portalChain(s.LoginSubmissionHandler()))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, s.portalChain(s.LogoutHandler()))

	// Portal routes (session bridge, then auth gate)
	s.RegisterRouteHandler("GET "+RouteDashboard, s.portalChain(s.DashboardHandler()))
	s.RegisterRouteHandler("GET "+RouteProfile, s.portalChain(s.ProfileHandler()))
	s.RegisterRouteHandler("GET "+RouteDocuments, s.portalChain(s.DocumentsListHandler()))
	s.RegisterRouteHandler("GET "+RoutePayments, s.portalChain(s.PaymentsListHandler()))
	s.RegisterRouteHandler("GET "+RouteQuotations, s.portalChain(s.QuotationsListHandler()))

	// Admin routes (operator role re-checked server-side per request)
	s.RegisterRouteHandler("POST "+RouteAdminAutologin, s.portalChain(s.AutologinIssueHandler(), s.RequireOperator()))
}

// portalChain applies the standard middleware stack: logging,
// recovery, CORS, then the session bridge ahead of the auth gate.
// Extra middleware (e.g. RequireOperator) runs after the gate.
func (s *Server) portalChain(routeFunc http.HandlerFunc, extra ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	mw := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.CorsMiddleware,
		s.SessionBridge,
		s.AuthGate,
	}
	mw = append(mw, extra...)
	return ChainMiddleware(routeFunc, mw...)
}
