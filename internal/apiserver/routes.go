package apiserver

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	// Resolution
	api.HandleFunc("/assets", s.handleAssets).Methods("GET")
	api.HandleFunc("/layers", s.handleLayers).Methods("GET")
	api.HandleFunc("/hybrids", s.handleHybrids).Methods("GET")

	// Cache maintenance
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/reindex", s.handleReindex).Methods("POST")
}
