// Package mqtt declares how assignment results leave the process: every
// fleet receives the customers it has to serve after a run.
package mqtt

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt publisher not connected")

// Share is the part of a customer's demand handed to a fleet.
type Share struct {
	CustomerID int     `json:"customer_id"`
	Quantity   float64 `json:"quantity"`
}

// FleetAllocation is the message sent to a fleet after a run.
type FleetAllocation struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	FleetID   int       `json:"fleet_id"`
	Assigned  float64   `json:"assigned"`
	Shares    []Share   `json:"shares"`
	Timestamp time.Time `json:"timestamp"`
}

// AllocationPublisher delivers fleet allocations to downstream consumers.
type AllocationPublisher interface {
	PublishAllocation(ctx context.Context, a FleetAllocation) error
	Close()
}

// NopPublisher drops every allocation.
type NopPublisher struct{}

func (NopPublisher) PublishAllocation(context.Context, FleetAllocation) error { return nil }
func (NopPublisher) Close()                                                   {}
