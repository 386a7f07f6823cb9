package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
)

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	if _, err := s.mdb.NewInsert(toEndpointModel(ep)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/mongo: create endpoint: %w", err)
	}
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": epID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("herald/mongo: get endpoint: %w", err)
	}
	return fromEndpointModel(&m)
}

// UpdateEndpoint replaces an existing endpoint document.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: update endpoint: %w", err)
	}
	if res.MatchedCount() == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

// DeleteEndpoint removes an endpoint and its attempt log.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.mdb.NewDelete((*endpointModel)(nil)).
		Filter(bson.M{"_id": epID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: delete endpoint: %w", err)
	}
	if res.DeletedCount() == 0 {
		return endpoint.ErrNotFound
	}

	if _, err := s.mdb.Collection(colAttempts).DeleteMany(ctx, bson.M{"endpoint_id": epID.String()}); err != nil {
		return fmt.Errorf("herald/mongo: delete attempts: %w", err)
	}
	return nil
}

// ListEndpoints returns endpoints in creation order.
func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.Active != nil {
		filter["is_active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list endpoints: %w", err)
	}
	return fromEndpointModels(models)
}

// Resolve finds the active endpoints of a tenant subscribed to eventType.
// Matching on the events array is done by the server.
func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"tenant_id": tenantID,
			"is_active": true,
			"events":    eventType,
		}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: resolve: %w", err)
	}
	return fromEndpointModels(models)
}

// RecordOutcome applies the outcome with a single FindOneAndUpdate. The
// failure branch is a pipeline update so the disable check sees the
// incremented counter.
func (s *Store) RecordOutcome(ctx context.Context, epID id.ID, success bool, threshold int, at time.Time) (*endpoint.Endpoint, error) {
	at = at.UTC()

	var update any
	if success {
		update = bson.M{"$set": bson.M{
			"consecutive_failures": 0,
			"last_triggered_at":    at,
			"updated_at":           at,
		}}
	} else {
		update = mongo.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "consecutive_failures", Value: bson.D{{Key: "$add", Value: bson.A{"$consecutive_failures", 1}}}},
				{Key: "updated_at", Value: at},
			}}},
			{{Key: "$set", Value: bson.D{
				{Key: "is_active", Value: bson.D{{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$gte", Value: bson.A{"$consecutive_failures", threshold}}},
					false,
					"$is_active",
				}}}},
			}}},
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m endpointModel
	err := s.mdb.Collection(colEndpoints).
		FindOneAndUpdate(ctx, bson.M{"_id": epID.String()}, update, opts).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("herald/mongo: record outcome: %w", err)
	}
	return fromEndpointModel(&m)
}

func fromEndpointModels(models []endpointModel) ([]*endpoint.Endpoint, error) {
	result := make([]*endpoint.Endpoint, 0, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}
