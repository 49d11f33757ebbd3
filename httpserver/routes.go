package httpserver

import (
	"net/http"
)

// setupRoutes sets up all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleIntro)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/log", s.handleLog)
	mux.HandleFunc("/queue", s.handleQueue)

	mux.HandleFunc("/healthz", s.handleHealthz)
}
