package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

// RecordAttempt appends to the attempt log.
func (s *Store) RecordAttempt(ctx context.Context, a *delivery.Attempt) error {
	if _, err := s.mdb.NewInsert(toAttemptModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/mongo: record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns an endpoint's attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	var models []attemptModel

	filter := bson.M{"endpoint_id": epID.String()}
	if opts.Success != nil {
		filter["success"] = *opts.Success
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "attempted_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list attempts: %w", err)
	}

	result := make([]*delivery.Attempt, 0, len(models))
	for i := range models {
		a, err := fromAttemptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}
