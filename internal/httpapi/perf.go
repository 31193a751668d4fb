package httpapi

import (
	"net/http"
	"time"

	"github.com/ent0n29/agora/internal/observability"
)

type perfResponse struct {
	ModelProvider string `json:"model_provider"`
	observability.LatencyReport
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	out := perfResponse{ModelProvider: s.provider}
	if s.metrics == nil {
		out.LatencyReport = observability.LatencyReport{GeneratedAt: time.Now().UTC(), Stages: []observability.StageLatency{}}
	} else {
		out.LatencyReport = s.metrics.LatencyReport()
	}
	respondJSON(w, http.StatusOK, out)
}
