package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (dashboard event stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Runs
	mux.HandleFunc("/api/runs", s.handleRunsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes) // /{id}, /{id}/cancel, /{id}/events

	// API routes - Events (global SSE stream)
	mux.HandleFunc("/api/events", s.app.EventsHandler.GlobalEventsHandler)

	// API routes - Watchlist
	mux.HandleFunc("/api/watchlist", s.handleWatchlistRoute)   // GET (list), POST (create)
	mux.HandleFunc("/api/watchlist/", s.handleWatchlistRoutes) // /{id}, /{id}/check

	// API routes - System
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/health/deep", s.app.StatusHandler.DeepHealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	return mux
}

func (s *Server) handleRunsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.RunHandler.ListRunsHandler, s.app.RunHandler.CreateRunHandler)
}

func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	switch {
	case strings.HasSuffix(path, "/cancel"):
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: s.app.RunHandler.CancelRunHandler,
		})
	case strings.HasSuffix(path, "/events"):
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet: s.app.EventsHandler.RunEventsHandler,
		})
	default:
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet: s.app.RunHandler.GetRunHandler,
		})
	}
}

func (s *Server) handleWatchlistRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.WatchlistHandler.ListHandler, s.app.WatchlistHandler.CreateHandler)
}

func (s *Server) handleWatchlistRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/watchlist/")
	if strings.HasSuffix(path, "/check") {
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost: s.app.WatchlistHandler.CheckHandler,
		})
		return
	}
	RouteResourceItem(w, r,
		s.app.WatchlistHandler.GetHandler,
		s.app.WatchlistHandler.UpdateHandler,
		s.app.WatchlistHandler.DeleteHandler)
}
