package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// --- Endpoint models ---

type endpointModel struct {
	grove.BaseModel `grove:"table:herald_endpoints"`

	ID                  string            `grove:"id,pk"`
	TenantID            string            `grove:"tenant_id"`
	URL                 string            `grove:"url"`
	Secret              string            `grove:"secret"`
	Events              []string          `grove:"events,array"`
	Description         string            `grove:"description"`
	IsActive            bool              `grove:"is_active"`
	ConsecutiveFailures int               `grove:"consecutive_failures"`
	LastTriggeredAt     *time.Time        `grove:"last_triggered_at"`
	Headers             map[string]string `grove:"headers,type:jsonb"`
	RateLimit           int               `grove:"rate_limit"`
	Metadata            map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt           time.Time         `grove:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:                  ep.ID.String(),
		TenantID:            ep.TenantID,
		URL:                 ep.URL,
		Secret:              ep.Secret,
		Events:              ep.Events,
		Description:         ep.Description,
		IsActive:            ep.Active,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastTriggeredAt:     ep.LastTriggeredAt,
		Headers:             emptyIfNil(ep.Headers),
		RateLimit:           ep.RateLimit,
		Metadata:            emptyIfNil(ep.Metadata),
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  epID,
		TenantID:            m.TenantID,
		URL:                 m.URL,
		Secret:              m.Secret,
		Events:              m.Events,
		Description:         m.Description,
		Active:              m.IsActive,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastTriggeredAt:     m.LastTriggeredAt,
		Headers:             m.Headers,
		RateLimit:           m.RateLimit,
		Metadata:            m.Metadata,
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
	AttemptedAt time.Time `grove:"attempted_at"`
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
		AttemptedAt: m.AttemptedAt,
	}, nil
}

func emptyIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
