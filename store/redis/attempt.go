package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

type attemptModel struct {
	EventID     string    `json:"event_id"`
	EndpointID  string    `json:"endpoint_id"`
	TenantID    string    `json:"tenant_id"`
	EventType   string    `json:"event_type"`
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Response    string    `json:"response,omitempty"`
	LatencyMs   int       `json:"latency_ms"`
	AttemptedAt time.Time `json:"attempted_at"`
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

// RecordAttempt adds the attempt to the endpoint's sorted set, scored by
// attempt time.
func (s *Store) RecordAttempt(ctx context.Context, a *delivery.Attempt) error {
	m := toAttemptModel(a)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("herald/redis: marshal attempt: %w", err)
	}
	err = s.rdb.ZAdd(ctx, zAttemptEP+m.EndpointID, goredis.Z{
		Score:  scoreFromTime(m.AttemptedAt),
		Member: raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("herald/redis: record attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	members, err := s.rdb.ZRevRange(ctx, zAttemptEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list attempts: %w", err)
	}

	result := make([]*delivery.Attempt, 0, len(members))
	for _, raw := range members {
		var m attemptModel
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("herald/redis: decode attempt: %w", err)
		}
		if opts.Success != nil && m.Success != *opts.Success {
			continue
		}
		a, err := fromAttemptModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}
