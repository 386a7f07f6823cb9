package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownEventType is returned for names outside the recognized set.
var ErrUnknownEventType = errors.New("herald: unknown event type")

// ErrPayloadInvalid wraps schema violations reported by ValidatePayload.
var ErrPayloadInvalid = errors.New("herald: payload does not match event schema")

// Catalog serves the event type definitions. The set of names is fixed;
// only the attached schemas and examples can change at runtime.
type Catalog struct {
	mu        sync.RWMutex
	defs      map[string]*WebhookDefinition
	validator *Validator
	logger    *slog.Logger
}

// New returns a Catalog holding every recognized event type.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	defs := make(map[string]*WebhookDefinition, len(builtin))
	for i := range builtin {
		d := builtin[i]
		defs[d.Name] = &d
	}
	return &Catalog{
		defs:      defs,
		validator: NewValidator(),
		logger:    logger,
	}
}

// Get returns a copy of the definition for name.
func (c *Catalog) Get(name string) (WebhookDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.defs[name]
	if !ok {
		return WebhookDefinition{}, fmt.Errorf("%w: %q", ErrUnknownEventType, name)
	}
	return *d, nil
}

// List returns every definition in presentation order, optionally limited
// to one group.
func (c *Catalog) List(group string) []WebhookDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]WebhookDefinition, 0, len(builtin))
	for _, b := range builtin {
		d := c.defs[b.Name]
		if group != "" && d.Group != group {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// SetSchema attaches a JSON Schema to a recognized event type. A nil schema
// removes validation. The schema must compile.
func (c *Catalog) SetSchema(name string, schema json.RawMessage) error {
	if len(schema) > 0 {
		var doc any
		if err := json.Unmarshal(schema, &doc); err != nil {
			return fmt.Errorf("herald: schema for %s: %w", name, err)
		}
		if _, err := c.validator.compile(doc); err != nil {
			return fmt.Errorf("herald: schema for %s: %w", name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, name)
	}
	d.Schema = schema
	c.logger.Debug("event schema updated", "event_type", name, "has_schema", len(schema) > 0)
	return nil
}

// SetExample attaches an example payload to a recognized event type.
func (c *Catalog) SetExample(name string, example json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, name)
	}
	d.Example = example
	return nil
}

// ValidatePayload checks data against the schema registered for name.
// Unknown names and names without a schema always pass.
func (c *Catalog) ValidatePayload(name string, data json.RawMessage) error {
	c.mu.RLock()
	d, ok := c.defs[name]
	var schema json.RawMessage
	if ok {
		schema = d.Schema
	}
	c.mu.RUnlock()

	if len(schema) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return fmt.Errorf("herald: schema for %s: %w", name, err)
	}
	if err := c.validator.ValidateJSON(doc, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPayloadInvalid, name, err)
	}
	return nil
}
