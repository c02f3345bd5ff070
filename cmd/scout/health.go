package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/market-scout/internal/historical"
	"github.com/rickgao/market-scout/internal/version"
)

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, svc *historical.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Build      version.Info   `json:"build"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Build:      version.Get(),
			Components: make(map[string]any),
		}

		sup := svc.Supervisor()
		sess := sup.Session()
		connected := sup.IsConnected()
		if !connected {
			health.Status = "unhealthy"
		} else if sess.ConsecutiveFailures > 0 {
			health.Status = "degraded"
		}

		health.Components["session"] = map[string]any{
			"state":                sess.State.String(),
			"connected":            connected,
			"consecutive_failures": sess.ConsecutiveFailures,
			"host":                 sess.Host,
			"port":                 sess.Port,
			"client_id":            sess.ClientID,
		}

		dog := sup.Watchdog()
		dogStats := dog.Stats()
		health.Components["watchdog"] = map[string]any{
			"running":  dog.Running(),
			"checks":   dogStats.Checks,
			"restarts": dogStats.Restarts,
			"failures": dogStats.Failures,
		}

		stats := svc.Stats()
		health.Components["historical"] = map[string]any{
			"run_id":       svc.RunID().String(),
			"requests":     stats.Requests,
			"completed":    stats.Completed,
			"failed":       stats.Failed,
			"bars":         stats.BarsReceived,
			"dropped":      stats.BarsDropped,
			"peer_errors":  stats.PeerErrors,
			"open_streams": stats.Cache.Open,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
