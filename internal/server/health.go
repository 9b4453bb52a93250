package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/driftkv/driftkv/internal/audit"
	"github.com/driftkv/driftkv/internal/metrics"
)

type healthResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	MetadataReady bool                    `json:"metadata_ready"`
	System        *metrics.SystemSnapshot `json:"system,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.metadataStore.IsReady()

	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MetadataReady: ready,
	}
	resp.System = metrics.CollectSystem(s.config.DataDir)

	status := http.StatusOK
	if !ready {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleAuditRecords serves GET /audit/records with optional kind, status,
// transport, page and page_size query filters.
func (s *Server) handleAuditRecords(w http.ResponseWriter, r *http.Request) {
	if s.auditManager == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}

	q := r.URL.Query()
	filters := &audit.Filters{
		Kind:      q.Get("kind"),
		Status:    q.Get("status"),
		Transport: q.Get("transport"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filters.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 {
		filters.PageSize = size
	}

	records, total, err := s.auditManager.GetRecords(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve audit records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
	})
}
