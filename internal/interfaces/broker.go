// -----------------------------------------------------------------------
// Broker - At-least-once work distribution between submitter and workers
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/describo/internal/models"
)

// Reservation is a leased work item. The holder must resolve it with Ack or
// Nack before the visibility timeout expires, or the item becomes eligible
// for redelivery to another worker.
type Reservation struct {
	Item       *models.WorkItem
	Deliveries int    // Total delivery count including this one
	Payload    []byte // Wire form of the item, needed to resolve the reservation
}

// TaskBroker hands work items from the submitter to workers with
// at-least-once semantics. Items survive process crashes; a reservation that
// is never resolved is reclaimed and redelivered.
type TaskBroker interface {
	// Enqueue makes the item visible to workers. Returns an error if the
	// broker cannot accept the item within the context deadline.
	Enqueue(ctx context.Context, item *models.WorkItem) error

	// Reserve leases the next visible item, blocking up to the context
	// deadline. Returns models.ErrNoWork when nothing arrives in time.
	Reserve(ctx context.Context) (*Reservation, error)

	// Ack permanently removes a reserved item.
	Ack(ctx context.Context, res *Reservation) error

	// Nack releases a reserved item. When retryable is true and the delivery
	// budget is not exhausted the item returns to the queue; otherwise it is
	// dropped.
	Nack(ctx context.Context, res *Reservation, retryable bool) error

	// Ping verifies broker connectivity.
	Ping(ctx context.Context) error

	Close() error
}
