package herald

import (
	"errors"

	"github.com/xraph/herald/auth"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/endpoint"
)

// Sentinel errors returned by Herald operations.
var (
	// ErrNoStore is returned when a Herald is created without a store.
	ErrNoStore = errors.New("herald: store is required")

	// ErrEndpointNotFound is returned for unknown endpoints and for endpoints
	// owned by another tenant.
	ErrEndpointNotFound = endpoint.ErrNotFound

	// ErrValidation matches every *endpoint.ValidationError.
	ErrValidation = endpoint.ErrValidation

	// ErrUnknownEventType is returned for names outside the event catalog.
	ErrUnknownEventType = catalog.ErrUnknownEventType

	// ErrPayloadInvalid marks payloads rejected by an event schema.
	ErrPayloadInvalid = catalog.ErrPayloadInvalid

	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = errors.New("herald: store is closed")

	// ErrUnauthorized is returned when a caller's identity cannot be verified.
	ErrUnauthorized = auth.ErrUnauthorized

	// ErrStopped is returned by Stop when Herald is already stopped.
	ErrStopped = delivery.ErrStopped
)
