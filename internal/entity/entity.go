// Package entity holds the timestamps shared by Herald's stored objects.
package entity

import "time"

// Entity is embedded by stored objects.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New stamps both fields with the current UTC time.
func New() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch advances UpdatedAt.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UTC()
}
