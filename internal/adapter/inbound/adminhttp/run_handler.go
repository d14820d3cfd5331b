package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
)

// RunRequest is the JSON body of POST /run: the policy to launch and,
// optionally, a LIKE-style path glob narrowing the scan (mirrors the
// CLI run subcommand's --target flag).
type RunRequest struct {
	Policy string `json:"policy"`
	Target string `json:"target,omitempty"`
}

// RunResponse echoes the resulting run.Summary.
type RunResponse struct {
	RunID     string `json:"run_id"`
	Outcome   string `json:"outcome"`
	Scanned   uint64 `json:"scanned"`
	Matched   uint64 `json:"matched"`
	Skipped   uint64 `json:"skipped"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Volume    uint64 `json:"volume"`
}

// handleRun launches a synchronous one-shot run of a named policy,
// returning once the run completes. It exists for out-of-band/manual
// triggering outside the trigger loop's own schedule.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Policy == "" {
		h.respondError(w, http.StatusBadRequest, "policy is required")
		return
	}

	run, ok := h.deps.Runners[req.Policy]
	if !ok {
		h.respondError(w, http.StatusNotFound, "unknown policy: "+req.Policy)
		return
	}

	summary, err := run.Run(r.Context(), targetFilterFromGlob(req.Target), runner.TimeModifier{})
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "run failed: "+err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, RunResponse{
		RunID:     summary.RunID,
		Outcome:   summary.Outcome.String(),
		Scanned:   summary.Scanned,
		Matched:   summary.Matched,
		Skipped:   summary.Skipped,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Volume:    summary.Volume,
	})
}
