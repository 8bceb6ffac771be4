package api

import (
	"net/http"

	"github.com/dgallion1/notetree/internal/store"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	*store.Stats
	Sweeper *store.SweepStats `json:"sweeper,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	resp := StatsResponse{Stats: st}
	if s.sweeper != nil {
		sw := s.sweeper.Stats()
		resp.Sweeper = &sw
	}
	writeJSON(w, http.StatusOK, resp)
}
