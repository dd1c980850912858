package server

import (
	"log/slog"
	"net/http"

	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/logging"
)

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label (e.g. "ollama", "chromadb").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready for readiness checks.
// It probes each registered Pinger under the health package's probe timeout
// and returns 200 when all dependencies are reachable, 503 when any fails.
// Unlike /api/health (liveness), this endpoint reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}

	for _, p := range s.pingers {
		st := health.Check(r.Context(), p.Name(), p)

		check := readyCheck{Name: st.Service, OK: st.Connected()}
		if st.Err != nil {
			check.Error = st.Err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", st.Service),
				slog.Any("error", st.Err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, log, status, resp)
}
