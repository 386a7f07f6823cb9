package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// --- Endpoint models ---

// endpointModel keeps collections as JSON text; SQLite has no array type.
type endpointModel struct {
	grove.BaseModel `grove:"table:herald_endpoints"`

	ID                  string     `grove:"id,pk"`
	TenantID            string     `grove:"tenant_id"`
	URL                 string     `grove:"url"`
	Secret              string     `grove:"secret"`
	Events              string     `grove:"events"` // JSON array
	Description         string     `grove:"description"`
	IsActive            bool       `grove:"is_active"`
	ConsecutiveFailures int        `grove:"consecutive_failures"`
	LastTriggeredAt     *string    `grove:"last_triggered_at"`
	Headers             string     `grove:"headers"` // JSON object
	RateLimit           int        `grove:"rate_limit"`
	Metadata            string     `grove:"metadata"` // JSON object
	CreatedAt           string     `grove:"created_at"`
	UpdatedAt           string     `grove:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) (*endpointModel, error) {
	events := ep.Events
	if events == nil {
		events = []string{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	headers, err := marshalMap(ep.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	metadata, err := marshalMap(ep.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &endpointModel{
		ID:                  ep.ID.String(),
		TenantID:            ep.TenantID,
		URL:                 ep.URL,
		Secret:              ep.Secret,
		Events:              string(eventsJSON),
		Description:         ep.Description,
		IsActive:            ep.Active,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastTriggeredAt:     formatTimePtr(ep.LastTriggeredAt),
		Headers:             headers,
		RateLimit:           ep.RateLimit,
		Metadata:            metadata,
		CreatedAt:           formatTime(ep.CreatedAt),
		UpdatedAt:           formatTime(ep.UpdatedAt),
	}, nil
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}

	var events []string
	if m.Events != "" {
		if err := json.Unmarshal([]byte(m.Events), &events); err != nil {
			return nil, fmt.Errorf("endpoint %s: decode events: %w", m.ID, err)
		}
	}
	headers, err := unmarshalMap(m.Headers)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: decode headers: %w", m.ID, err)
	}
	metadata, err := unmarshalMap(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: decode metadata: %w", m.ID, err)
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: created_at: %w", m.ID, err)
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: updated_at: %w", m.ID, err)
	}
	var lastTriggered *time.Time
	if m.LastTriggeredAt != nil {
		t, err := parseTime(*m.LastTriggeredAt)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: last_triggered_at: %w", m.ID, err)
		}
		lastTriggered = &t
	}

	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                  epID,
		TenantID:            m.TenantID,
		URL:                 m.URL,
		Secret:              m.Secret,
		Events:              events,
		Description:         m.Description,
		Active:              m.IsActive,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastTriggeredAt:     lastTriggered,
		Headers:             headers,
		RateLimit:           m.RateLimit,
		Metadata:            metadata,
	}, nil
}

func fromEndpointModels(models []endpointModel) ([]*endpoint.Endpoint, error) {
	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

// --- Attempt models ---

type attemptModel struct {
	grove.BaseModel `grove:"table:herald_attempts"`

	EventID     string    `grove:"event_id,pk"`
	EndpointID  string    `grove:"endpoint_id"`
	TenantID    string    `grove:"tenant_id"`
	EventType   string    `grove:"event_type"`
	Success     bool      `grove:"success"`
	StatusCode  int       `grove:"status_code"`
	Error       string    `grove:"error"`
	Response    string    `grove:"response"`
	LatencyMs   int       `grove:"latency_ms"`
	AttemptedAt string    `grove:"attempted_at"`
}

func toAttemptModel(a *delivery.Attempt) *attemptModel {
	return &attemptModel{
		EventID:     a.EventID.String(),
		EndpointID:  a.EndpointID.String(),
		TenantID:    a.TenantID,
		EventType:   a.EventType,
		Success:     a.Success,
		StatusCode:  a.StatusCode,
		Error:       a.Error,
		Response:    a.Response,
		LatencyMs:   a.LatencyMs,
		AttemptedAt: formatTime(a.AttemptedAt),
	}
}

func fromAttemptModel(m *attemptModel) (*delivery.Attempt, error) {
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	attemptedAt, err := parseTime(m.AttemptedAt)
	if err != nil {
		return nil, fmt.Errorf("attempt %s: attempted_at: %w", m.EventID, err)
	}
	return &delivery.Attempt{
		EventID:     evtID,
		EndpointID:  epID,
		TenantID:    m.TenantID,
		EventType:   m.EventType,
		Success:     m.Success,
		StatusCode:  m.StatusCode,
		Error:       m.Error,
		Response:    m.Response,
		LatencyMs:   m.LatencyMs,
		AttemptedAt: attemptedAt,
	}, nil
}

// timeLayout is fixed-width UTC, so text order is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteDefaultLayout is what datetime('now') column defaults produce.
const sqliteDefaultLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(sqliteDefaultLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func unmarshalMap(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
