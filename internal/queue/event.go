// Package queue carries domain events over RabbitMQ: a publisher used by
// the services and a consumer that appends them to an audit log.
package queue

import "time"

// DefaultQueue is the durable queue every event goes to.
const DefaultQueue = "foodshare.events"

// Event types.
const (
	ReservationCreated      = "reservation.created"
	ReservationTransitioned = "reservation.transitioned"
	ReservationDeleted      = "reservation.deleted"
	ListingOverridden       = "listing.status_overridden"
	DocumentSubmitted       = "document.submitted"
	DocumentReviewed        = "document.reviewed"
)

// Event is a state change worth telling other actors about.  It carries
// enough to write an audit line without querying the primary database.
// Delivery is at least once and best effort; persisted state never depends
// on it.
type Event struct {
	Type           string    `json:"type"`
	ActorID        uint64    `json:"actor_id"`
	ReservationID  uint64    `json:"reservation_id,omitempty"`
	ListingID      uint64    `json:"listing_id,omitempty"`
	OrganizationID uint64    `json:"organization_id,omitempty"`
	BusinessID     uint64    `json:"business_id,omitempty"`
	DocumentID     uint64    `json:"document_id,omitempty"`
	AccountID      uint64    `json:"account_id,omitempty"`
	From           string    `json:"from,omitempty"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
