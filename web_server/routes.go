package web_server

import (
	"context"
	"encoding/json"
	"github.com/lefinal/rally-server/ws"
	"go.uber.org/zap"
	"net/http"
	"sort"
)

// HealthCheck reports whether a component is healthy.
type HealthCheck func() bool

// Routes are the handlers to serve. Nil fields are not served.
type Routes struct {
	// GameHub serves /ws.
	GameHub *ws.Hub
	// MatchmakingHub serves /ws/matchmaking.
	MatchmakingHub *ws.Hub
	// Metrics serves /metrics.
	Metrics http.Handler
	// HealthChecks are reported by /healthz by name.
	HealthChecks map[string]HealthCheck
	// TrustedProxies may set X-Forwarded-For for websocket connections.
	TrustedProxies ws.TrustedProxies
}

// PopulateRoutes populates the WebServer with the routes. The given context is
// used for stopping websocket connections.
func (server *WebServer) PopulateRoutes(wsCtx context.Context, routes Routes) {
	// Websocket stuff.
	if routes.GameHub != nil {
		server.router.HandleFunc("/ws", ws.HandleWS(wsCtx, routes.GameHub, routes.TrustedProxies))
	}
	if routes.MatchmakingHub != nil {
		server.router.HandleFunc("/ws/matchmaking", ws.HandleWS(wsCtx, routes.MatchmakingHub, routes.TrustedProxies))
	}
	// Operations.
	if routes.Metrics != nil {
		server.router.Handle("/metrics", routes.Metrics).Methods(http.MethodGet)
	}
	server.router.HandleFunc("/healthz", handleHealth(server.logger, routes.HealthChecks)).Methods(http.MethodGet)
}

type healthResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// handleHealth responds with http.StatusServiceUnavailable if any check
// fails.
func handleHealth(logger *zap.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		res := healthResponse{
			Status: "ok",
			Checks: make(map[string]bool, len(checks)),
		}
		for _, name := range names {
			ok := checks[name]()
			res.Checks[name] = ok
			if !ok {
				res.Status = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if res.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		err := json.NewEncoder(w).Encode(res)
		if err != nil {
			logger.Debug("write health response", zap.Error(err))
		}
	}
}
