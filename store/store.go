// Package store defines the composite Store interface for Herald persistence.
//
// Each subsystem declares its own store interface and the aggregate Store
// composes them, so a single backend value serves the whole engine.
package store

import (
	"context"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
)

// Store is the aggregate persistence interface.
type Store interface {
	endpoint.Store
	delivery.Store

	// Migrate creates or upgrades the backend schema.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
