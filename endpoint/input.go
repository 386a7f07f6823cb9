package endpoint

// Input is the creation payload for endpoints.
type Input struct {
	TenantID string `json:"tenant_id"`
	URL      string `json:"url"`

	// Events are event type names or group patterns such as "order.*".
	// Patterns are expanded to concrete names at creation.
	Events []string `json:"events"`

	Description string `json:"description"`

	// Active defaults to true when nil.
	Active *bool `json:"is_active,omitempty"`

	Headers   map[string]string `json:"headers,omitempty"`
	RateLimit int               `json:"rate_limit"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	URL         *string           `json:"url,omitempty"`
	Events      []string          `json:"events,omitempty"`
	Description *string           `json:"description,omitempty"`
	Active      *bool             `json:"is_active,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RateLimit   *int              `json:"rate_limit,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	// TenantID restricts results to one tenant. Empty means every tenant
	// and is only honoured for super-admin callers.
	TenantID string

	Offset int
	Limit  int
	Active *bool
}
