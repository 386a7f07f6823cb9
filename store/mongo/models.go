package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

type endpointModel struct {
	grove.BaseModel `grove:"table:herald_endpoints"`

	ID                  string            `grove:"id,pk"                bson:"_id"`
	TenantID            string            `grove:"tenant_id"            bson:"tenant_id"`
	URL                 string            `grove:"url"                  bson:"url"`
	Secret              string            `grove:"secret"               bson:"secret"`
	Events              []string          `grove:"events"               bson:"events"`
	Description         string            `grove:"description"          bson:"description"`
	IsActive            bool              `grove:"is_active"            bson:"is_active"`
	ConsecutiveFailures int               `grove:"consecutive_failures" bson:"consecutive_failures"`
	LastTriggeredAt     *time.Time        `grove:"last_triggered_at"    bson:"last_triggered_at,omitempty"`
	Headers             map[string]string `grove:"headers"              bson:"headers,omitempty"`
	RateLimit           int               `grove:"rate_limit"           bson:"rate_limit"`
	Metadata            map[string]string `grove:"metadata"             bson:"metadata,omitempty"`
	CreatedAt           time.Time         `grove:"created_at"           bson:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"           bson:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	events := ep.Events
	if events == nil {
		events = []string{}
	}
	return &endpointModel{
		ID:                  ep.ID.String(),
		TenantID:            ep.TenantID,
		URL:                 ep.URL,
		Secret:              ep.Secret,
		Events:              events,
		Description:         ep.Description,
		IsActive:            ep.Active,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastTriggeredAt:     ep.LastTriggeredAt,
		Headers:             ep.Headers,
		RateLimit:           ep.RateLimit,
		Metadata:            ep.Metadata,
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	ep := &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                  epID,
		TenantID:            m.TenantID,
		URL:                 m.URL,
		Secret:              m.Secret,
		Events:              m.Events,
		Description:         m.Description,
		Active:              m.IsActive,
		ConsecutiveFailures: m.ConsecutiveFailures,
		Headers:             m.Headers,
		RateLimit:           m.RateLimit,
		Metadata:            m.Metadata,
	}
	if m.LastTriggeredAt != nil {
		t := m.LastTriggeredAt.UTC()
		ep.LastTriggeredAt = &t
	}
	return ep, nil
}

type attemptModel struct {
	grove.BaseModel `grove:"table:herald_attempts"`

	EventID     string    `grove:"event_id,pk"  bson:"_id"`
	EndpointID  string    `grove:"endpoint_id"  bson:"endpoint_id"`
	TenantID    string    `grove:"tenant_id"    bson:"tenant_id"`
	EventType   string    `grove:"event_type"   bson:"event_type"`
	Success     bool      `grove:"success"      bson:"success"`
	StatusCode  int       `grove:"status_code"  bson:"status_code"`
	Error       string    `grove:"error"        bson:"error,omitempty"`
	Response    string    `grove:"response"     bson:"response,omitempty"`
	LatencyMs   int       `grove:"latency_ms"   bson:"latency_ms"`
	AttemptedAt time.Time `grove:"attempted_at" bson:"attempted_at"`
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
		AttemptedAt: a.AttemptedAt,
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
		AttemptedAt: m.AttemptedAt.UTC(),
	}, nil
}
