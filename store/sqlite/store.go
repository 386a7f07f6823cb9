// Package sqlite implements the Herald store on SQLite via the grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
)

var _ heraldstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a SQLite store on an open grove database.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate applies the Herald migration group.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("herald/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("herald/sqlite: migration failed: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m, err := toEndpointModel(ep)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("herald/sqlite: create endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", epID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("herald/sqlite: get endpoint: %w", err)
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m, err := toEndpointModel(ep)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/sqlite: update endpoint: %w", err)
	}
	return mustAffect(res)
}

// DeleteEndpoint removes the endpoint and its attempt log.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.sdb.NewDelete((*endpointModel)(nil)).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/sqlite: delete endpoint: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	if _, err := s.sdb.NewDelete((*attemptModel)(nil)).
		Where("endpoint_id = ?", epID.String()).
		Exec(ctx); err != nil {
		return fmt.Errorf("herald/sqlite: delete attempts: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.sdb.NewSelect(&models)
	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/sqlite: list endpoints: %w", err)
	}
	return fromEndpointModels(models)
}

// Resolve matches subscriptions with json_each over the events column.
func (s *Store) Resolve(ctx context.Context, tenantID, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("is_active = 1").
		Where("EXISTS (SELECT 1 FROM json_each(events) WHERE json_each.value = ?)", eventType).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/sqlite: resolve: %w", err)
	}
	return fromEndpointModels(models)
}

// RecordOutcome applies the outcome in one UPDATE ... RETURNING statement.
// SQLite serializes writers, so the increment cannot be lost.
func (s *Store) RecordOutcome(ctx context.Context, epID id.ID, success bool, threshold int, at time.Time) (*endpoint.Endpoint, error) {
	var models []endpointModel
	ts := formatTime(at)
	err := s.sdb.NewRaw(`
		UPDATE herald_endpoints SET
			consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures + 1 END,
			is_active = CASE
				WHEN NOT ? AND consecutive_failures + 1 >= ? THEN 0
				ELSE is_active
			END,
			last_triggered_at = CASE WHEN ? THEN ? ELSE last_triggered_at END,
			updated_at = ?
		WHERE id = ?
		RETURNING *
	`, success, success, threshold, success, ts, ts, epID.String()).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("herald/sqlite: record outcome: %w", err)
	}
	if len(models) == 0 {
		return nil, endpoint.ErrNotFound
	}
	return fromEndpointModel(&models[0])
}

// ==================== Attempt Store ====================

func (s *Store) RecordAttempt(ctx context.Context, a *delivery.Attempt) error {
	if _, err := s.sdb.NewInsert(toAttemptModel(a)).Exec(ctx); err != nil {
		return fmt.Errorf("herald/sqlite: record attempt: %w", err)
	}
	return nil
}

func (s *Store) ListAttempts(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Attempt, error) {
	var models []attemptModel
	q := s.sdb.NewSelect(&models).Where("endpoint_id = ?", epID.String())
	if opts.Success != nil {
		q = q.Where("success = ?", *opts.Success)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("attempted_at DESC, event_id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/sqlite: list attempts: %w", err)
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

func mustAffect(res rowsAffecter) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("herald/sqlite: rows affected: %w", err)
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
