package api

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
)

type createEventRequest struct {
	Event    string          `json:"event"`
	TenantID string          `json:"tenant_id,omitempty"`
	Data     json.RawMessage `json:"data"`
}

type createEventResponse struct {
	Event    string            `json:"event"`
	TenantID string            `json:"tenant_id"`
	Reports  []delivery.Report `json:"reports,omitempty"`
}

// createEvent dispatches an event for the caller's tenant. With ?wait=true
// it blocks until every attempt finished and returns the reports.
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	if _, err := h.herald.Catalog().Get(req.Event); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tenantID, ok := resolveTenant(caller, req.TenantID)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant_id does not match caller")
		return
	}
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}

	resp := createEventResponse{Event: req.Event, TenantID: tenantID}
	if wait := queryBool(r, "wait"); wait != nil && *wait {
		resp.Reports = h.herald.DispatchSync(r.Context(), tenantID, req.Event, data)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	h.herald.Dispatch(r.Context(), tenantID, req.Event, data)
	writeJSON(w, http.StatusAccepted, resp)
}
