package api

import (
	"net/http"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

type createEndpointRequest struct {
	TenantID    string            `json:"tenant_id,omitempty"`
	URL         string            `json:"url"`
	Events      []string          `json:"events"`
	Description string            `json:"description,omitempty"`
	Active      *bool             `json:"is_active,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RateLimit   int               `json:"rate_limit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// endpointResponse exposes the secret, which Endpoint never serializes.
// It carries the full secret after create and the masked form otherwise.
type endpointResponse struct {
	*endpoint.Endpoint
	Secret string `json:"secret"`
}

func respond(ep *endpoint.Endpoint) endpointResponse {
	return endpointResponse{Endpoint: ep, Secret: ep.Secret}
}

func (h *Handler) createEndpoint(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	var req createEndpointRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID, ok := resolveTenant(caller, req.TenantID)
	if !ok {
		writeError(w, http.StatusBadRequest, "tenant_id does not match caller")
		return
	}

	ep, err := h.herald.Endpoints().Create(r.Context(), endpoint.Input{
		TenantID:    tenantID,
		URL:         req.URL,
		Events:      req.Events,
		Description: req.Description,
		Active:      req.Active,
		Headers:     req.Headers,
		RateLimit:   req.RateLimit,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, respond(ep))
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	opts := endpoint.ListOpts{
		TenantID: queryParam(r, "tenant_id"),
		Offset:   queryInt(r, "offset", 0),
		Limit:    queryInt(r, "limit", 50),
		Active:   queryBool(r, "is_active"),
	}

	eps, err := h.herald.Endpoints().List(r.Context(), caller, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]endpointResponse, len(eps))
	for i, ep := range eps {
		out[i] = respond(ep)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getEndpoint(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	ep, err := h.herald.Endpoints().Get(r.Context(), epID, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, respond(ep))
}

func (h *Handler) updateEndpoint(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	var patch endpoint.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.herald.Endpoints().Update(r.Context(), epID, caller, patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, respond(ep))
}

func (h *Handler) deleteEndpoint(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	if err := h.herald.Endpoints().Delete(r.Context(), epID, caller); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request, caller endpoint.Caller) {
	epID, err := id.ParseEndpointID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint ID")
		return
	}

	secret, err := h.herald.Endpoints().RotateSecret(r.Context(), epID, caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// resolveTenant picks the tenant a write applies to. Tenant callers may
// only name their own tenant; super-admins must name one.
func resolveTenant(caller endpoint.Caller, requested string) (string, bool) {
	if caller.SuperAdmin {
		return requested, true
	}
	if requested != "" && requested != caller.TenantID {
		return "", false
	}
	return caller.TenantID, true
}
