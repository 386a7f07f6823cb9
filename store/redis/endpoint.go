package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// maxOutcomeRetries bounds optimistic transaction retries in RecordOutcome.
const maxOutcomeRetries = 16

// endpointModel is the JSON document stored per endpoint.
type endpointModel struct {
	ID                  string            `json:"id"`
	TenantID            string            `json:"tenant_id"`
	URL                 string            `json:"url"`
	Secret              string            `json:"secret"`
	Events              []string          `json:"events"`
	Description         string            `json:"description"`
	IsActive            bool              `json:"is_active"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastTriggeredAt     *time.Time        `json:"last_triggered_at,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	RateLimit           int               `json:"rate_limit"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
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

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	score := scoreFromTime(m.CreatedAt)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, entityKey(prefixEndpoint, m.ID), raw, 0)
		pipe.ZAdd(ctx, zEndpointAll, goredis.Z{Score: score, Member: m.ID})
		pipe.ZAdd(ctx, zEndpointTenant+m.TenantID, goredis.Z{Score: score, Member: m.ID})
		for _, evt := range m.Events {
			pipe.SAdd(ctx, subscriptionKey(m.TenantID, evt), m.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("herald/redis: create endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel
	if err := s.getEntity(ctx, entityKey(prefixEndpoint, epID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("herald/redis: get endpoint: %w", err)
	}
	return fromEndpointModel(&m)
}

// UpdateEndpoint replaces the document and re-indexes subscriptions.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	key := entityKey(prefixEndpoint, ep.ID.String())

	var existing endpointModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isRedisNil(err) {
			return endpoint.ErrNotFound
		}
		return fmt.Errorf("herald/redis: update endpoint get: %w", err)
	}

	m := toEndpointModel(ep)
	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, raw, 0)
		for _, evt := range existing.Events {
			pipe.SRem(ctx, subscriptionKey(existing.TenantID, evt), m.ID)
		}
		for _, evt := range m.Events {
			pipe.SAdd(ctx, subscriptionKey(m.TenantID, evt), m.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("herald/redis: update endpoint: %w", err)
	}
	return nil
}

// DeleteEndpoint removes the document, its indexes and its attempt log.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return endpoint.ErrNotFound
		}
		return fmt.Errorf("herald/redis: delete endpoint get: %w", err)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key, zAttemptEP+m.ID)
		pipe.ZRem(ctx, zEndpointAll, m.ID)
		pipe.ZRem(ctx, zEndpointTenant+m.TenantID, m.ID)
		for _, evt := range m.Events {
			pipe.SRem(ctx, subscriptionKey(m.TenantID, evt), m.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("herald/redis: delete endpoint: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	index := zEndpointAll
	if opts.TenantID != "" {
		index = zEndpointTenant + opts.TenantID
	}
	ids, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list endpoints: %w", err)
	}

	models, err := s.loadEndpoints(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, 0, len(models))
	for _, m := range models {
		if opts.Active != nil && m.IsActive != *opts.Active {
			continue
		}
		ep, err := fromEndpointModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.SMembers(ctx, subscriptionKey(tenantID, eventType)).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: resolve: %w", err)
	}

	models, err := s.loadEndpoints(ctx, ids)
	if err != nil {
		return nil, err
	}

	var result []*endpoint.Endpoint
	for _, m := range models {
		if !m.IsActive || m.TenantID != tenantID {
			continue
		}
		ep, err := fromEndpointModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}

// RecordOutcome runs a WATCH/MULTI transaction on the endpoint document and
// retries when another writer changed it in between.
func (s *Store) RecordOutcome(ctx context.Context, epID id.ID, success bool, threshold int, at time.Time) (*endpoint.Endpoint, error) {
	key := entityKey(prefixEndpoint, epID.String())
	at = at.UTC()

	var out endpointModel
	txf := func(tx *goredis.Tx) error {
		var m endpointModel
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}

		if success {
			m.ConsecutiveFailures = 0
			m.LastTriggeredAt = &at
		} else {
			m.ConsecutiveFailures++
			if m.ConsecutiveFailures >= threshold {
				m.IsActive = false
			}
		}
		m.UpdatedAt = at

		updated, err := marshalEntity(&m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err == nil {
			out = m
		}
		return err
	}

	for range maxOutcomeRetries {
		err := s.rdb.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return fromEndpointModel(&out)
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case isRedisNil(err):
			return nil, endpoint.ErrNotFound
		default:
			return nil, fmt.Errorf("herald/redis: record outcome: %w", err)
		}
	}
	return nil, fmt.Errorf("herald/redis: record outcome: %w", goredis.TxFailedErr)
}

// loadEndpoints fetches documents with one MGET, skipping IDs whose
// document has gone.
func (s *Store) loadEndpoints(ctx context.Context, ids []string) ([]*endpointModel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, entryID := range ids {
		keys[i] = entityKey(prefixEndpoint, entryID)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: load endpoints: %w", err)
	}

	models := make([]*endpointModel, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var m endpointModel
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			return nil, fmt.Errorf("herald/redis: decode endpoint %s: %w", ids[i], err)
		}
		models = append(models, &m)
	}
	return models, nil
}
