package api

import (
	"net/http"

	"github.com/xraph/herald/endpoint"
)

type statsResponse struct {
	Endpoints         int `json:"endpoints"`
	ActiveEndpoints   int `json:"active_endpoints"`
	DisabledEndpoints int `json:"disabled_endpoints"`

	// FailingEndpoints are active endpoints with at least one failure
	// since their last success.
	FailingEndpoints int `json:"failing_endpoints"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	eps, err := h.herald.Endpoints().List(r.Context(), caller, endpoint.ListOpts{
		TenantID: queryParam(r, "tenant_id"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var resp statsResponse
	for _, ep := range eps {
		resp.Endpoints++
		switch {
		case !ep.Active:
			resp.DisabledEndpoints++
		case ep.ConsecutiveFailures > 0:
			resp.ActiveEndpoints++
			resp.FailingEndpoints++
		default:
			resp.ActiveEndpoints++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
