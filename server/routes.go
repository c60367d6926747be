package server

func (s *Server) initRoutes() {
	// Install flow
	s.RegisterRouteFunc("GET "+RouteInstall, ChainMiddleware(s.InstallHandler(), s.stdMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteInstallGuide, ChainMiddleware(s.InstallGuideHandler(), s.stdMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteOAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.stdMiddleware()...))

	// Session
	s.RegisterRouteFunc("GET "+RouteSessionCheck, ChainMiddleware(s.SessionCheckHandler(), s.apiMiddleware()...))

	// Debug / integration API
	s.RegisterRouteFunc("GET "+RouteAPIInstallations, ChainMiddleware(s.InstallationsListHandler(), s.apiMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPITokens, ChainMiddleware(s.TokenPreviewsHandler(), s.apiMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPITokenAccess, ChainMiddleware(s.TokenAccessHandler(), s.apiMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPITokenRefresh, ChainMiddleware(s.TokenRefreshHandler(), s.apiMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPIAuditEvents, ChainMiddleware(s.AuditEventsHandler(), s.apiMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
