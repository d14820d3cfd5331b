package adminhttp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
)

// PolicyStatus reports a policy's most recent run, read back from the
// summary variables Runner.Run persists to the catalog's vars table.
type PolicyStatus struct {
	Name      string `json:"name"`
	LastStart string `json:"last_start,omitempty"`
	LastEnd   string `json:"last_end,omitempty"`
	LastRunID string `json:"last_run_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
	Scanned   uint64 `json:"scanned"`
	Matched   uint64 `json:"matched"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Volume    uint64 `json:"volume"`
	Retries   uint64 `json:"retries"`
}

// TriggerStatus reports one trigger's current lifecycle state.
type TriggerStatus struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LastCheck     string  `json:"last_check,omitempty"`
	LastUsage     float64 `json:"last_usage_pct,omitempty"`
	LastCount     uint64  `json:"last_count"`
	TotalActions  uint64  `json:"total_actions"`
	TotalVolume   uint64  `json:"total_volume"`
	TotalErrors   uint64  `json:"total_errors"`
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Policies      []PolicyStatus  `json:"policies"`
	Triggers      []TriggerStatus `json:"triggers"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sess *catalog.Session
	if h.deps.Catalog != nil {
		s, err := h.deps.Catalog.OpenSession(ctx)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "open catalog session: "+err.Error())
			return
		}
		defer func() { _ = s.CloseSession(ctx) }()
		sess = s
	}

	resp := StatusResponse{UptimeSeconds: time.Since(h.deps.StartedAt).Seconds()}
	for name := range h.deps.Runners {
		resp.Policies = append(resp.Policies, policyStatus(ctx, sess, name))
	}
	if h.deps.Triggers != nil {
		for name, st := range h.deps.Triggers.Snapshot() {
			resp.Triggers = append(resp.Triggers, TriggerStatus{
				Name:         name,
				Status:       st.Status.String(),
				LastCheck:    formatTime(st.LastCheck),
				LastUsage:    st.LastUsage,
				LastCount:    st.LastCount,
				TotalActions: st.TotalCounters.Count,
				TotalVolume:  st.TotalCounters.Volume,
				TotalErrors:  st.TotalCounters.Errors,
			})
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func policyStatus(ctx context.Context, sess *catalog.Session, name string) PolicyStatus {
	ps := PolicyStatus{Name: name}
	if sess == nil {
		return ps
	}
	ps.LastStart = getVarOrEmpty(ctx, sess, name+"_start")
	ps.LastEnd = getVarOrEmpty(ctx, sess, name+"_end")
	ps.LastRunID = getVarOrEmpty(ctx, sess, name+"_run_id")
	ps.Status = getVarOrEmpty(ctx, sess, name+"_status")
	ps.Trigger = getVarOrEmpty(ctx, sess, name+"_trigger")
	ps.Scanned = getVarUint(ctx, sess, name+"_scanned")
	ps.Matched = getVarUint(ctx, sess, name+"_matched")
	ps.Succeeded = getVarUint(ctx, sess, name+"_succeeded")
	ps.Failed = getVarUint(ctx, sess, name+"_failed")
	ps.Volume = getVarUint(ctx, sess, name+"_volume")
	ps.Retries = getVarUint(ctx, sess, name+"_retries")
	return ps
}

func getVarOrEmpty(ctx context.Context, sess *catalog.Session, name string) string {
	v, err := sess.GetVar(ctx, name)
	if err != nil {
		return ""
	}
	return v
}

func getVarUint(ctx context.Context, sess *catalog.Session, name string) uint64 {
	v, err := sess.GetVar(ctx, name)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
