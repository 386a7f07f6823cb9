package api

import (
	"net/http"

	"github.com/xraph/herald/endpoint"
)

func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request, _ endpoint.Caller) {
	writeJSON(w, http.StatusOK, h.herald.Catalog().List(queryParam(r, "group")))
}

func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request, _ endpoint.Caller) {
	def, err := h.herald.Catalog().Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "event type not found")
		return
	}
	writeJSON(w, http.StatusOK, def)
}
