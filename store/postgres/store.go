// Package postgres implements the Herald store on PostgreSQL via the grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

var _ heraldstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a PostgreSQL store on an open grove database.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate applies the Herald migration group.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("herald/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("herald/postgres: migration failed: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	if _, err := s.pg.NewInsert(toEndpointModel(ep)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/postgres: create endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", epID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("herald/postgres: get endpoint: %w", err)
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	res, err := s.pg.NewUpdate(toEndpointModel(ep)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/postgres: update endpoint: %w", err)
	}
	return mustAffect(res)
}

// DeleteEndpoint removes the endpoint and its attempt log.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.pg.NewDelete((*endpointModel)(nil)).
		Where("id = $1", epID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/postgres: delete endpoint: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	if _, err := s.pg.NewDelete((*attemptModel)(nil)).
		Where("endpoint_id = $1", epID.String()).
		Exec(ctx); err != nil {
		return fmt.Errorf("herald/postgres: delete attempts: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.TenantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("tenant_id = $%d", argIdx), opts.TenantID)
	}
	if opts.Active != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/postgres: list endpoints: %w", err)
	}
	return fromEndpointModels(models)
}

// Resolve relies on the GIN index over events.
func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		Where("is_active = true").
		Where("$2 = ANY(events)", eventType).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/postgres: resolve: %w", err)
	}
	return fromEndpointModels(models)
}

// RecordOutcome applies the outcome in a single UPDATE so concurrent
// deliveries to the same endpoint never lose an increment.
func (s *Store) RecordOutcome(ctx context.Context, epID id.ID, success bool, threshold int, at time.Time) (*endpoint.Endpoint, error) {
	var models []endpointModel
	err := s.pg.NewRaw(`
		UPDATE herald_endpoints SET
			consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures + 1 END,
			is_active = CASE
				WHEN NOT $2 AND consecutive_failures + 1 >= $3 THEN FALSE
				ELSE is_active
			END,
			last_triggered_at = CASE WHEN $2 THEN $4 ELSE last_triggered_at END,
			updated_at = $4
		WHERE id = $1
		RETURNING *
	`, epID.String(), success, threshold, at.UTC()).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("herald/postgres: record outcome: %w", err)
	}
	if len(models) == 0 {
		return nil, endpoint.ErrNotFound
	}
	return fromEndpointModel(&models[0])
}

// ==================== Attempt Store ====================

func (s *Store) RecordAttempt(ctx context.Context, a *delivery.Attempt) error {
	if _, err := s.pg.NewInsert(toAttemptModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/postgres: record attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	var models []attemptModel
	q := s.pg.NewSelect(&models).Where("endpoint_id = $1", epID.String())
	if opts.Success != nil {
		q = q.Where("success = $2", *opts.Success)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("attempted_at DESC, event_id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/postgres: list attempts: %w", err)
	}

	result := make([]*delivery.Attempt, len(models))
	for i := range models {
		a, err := fromAttemptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// mustAffect maps a zero-row write to endpoint.ErrNotFound.
func mustAffect(res rowsAffecter) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("herald/postgres: rows affected: %w", err)
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
