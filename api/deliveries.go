package api

import (
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	opts := delivery.ListOpts{
		Offset:  queryInt(r, "offset", 0),
		Limit:   queryInt(r, "limit", 50),
		Success: queryBool(r, "success"),
	}

	attempts, err := h.herald.Attempts(r.Context(), epID, caller, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, attempts)
}
