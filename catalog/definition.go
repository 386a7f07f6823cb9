package catalog

import "encoding/json"

// WebhookDefinition describes one event type.
type WebhookDefinition struct {
	// Name is "<resource>.<action>", e.g. "order.created".
	Name string `json:"name"`

	Description string `json:"description"`

	// Group is the resource part of Name.
	Group string `json:"group"`

	// Schema is an optional JSON Schema for the payload. When set, events
	// whose data does not validate are dropped before fan-out.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Example is an optional example payload for documentation.
	Example json.RawMessage `json:"example,omitempty"`
}
