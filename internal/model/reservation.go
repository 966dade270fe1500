package model

import "time"

// Reservation statuses (reservations.status).
const (
	ReservationPending   = "PENDING"
	ReservationAccepted  = "ACCEPTED"
	ReservationRefused   = "REFUSED"
	ReservationCompleted = "COMPLETED"
	ReservationCancelled = "CANCELLED"
)

// Terminal reports whether no transition may leave status s.
func Terminal(s string) bool {
	return s == ReservationCompleted || s == ReservationCancelled || s == ReservationRefused
}

// Reservation binds one listing to one organization.
//
// Fields:
//  ID             – primary key identifier.
//  ListingID      – reserved listing.
//  OrganizationID – reserving organization.
//  CollectAt      – requested pickup time inside the listing window.
//  Status         – PENDING, ACCEPTED, REFUSED, COMPLETED or CANCELLED.
//  Comment        – optional free text, replaced on transition.
//  IdempotencyKey – optional client key deduplicating creation retries.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Reservation struct {
	ID             uint64    `json:"id"`              // reservations.id
	ListingID      uint64    `json:"listing_id"`      // reservations.listing_id
	OrganizationID uint64    `json:"organization_id"` // reservations.organization_id
	CollectAt      time.Time `json:"collect_at"`
	Status         string    `json:"status"`
	Comment        *string   `json:"comment,omitempty"`
	IdempotencyKey *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ReservationView is a reservation joined with the parties needed for
// authorization and display.
type ReservationView struct {
	Reservation
	ListingTitle        string `json:"listing_title"`
	ListingStatus       string `json:"listing_status"`
	BusinessID          uint64 `json:"business_id"`
	BusinessOwnerID     uint64 `json:"-"`
	OrganizationName    string `json:"organization_name"`
	OrganizationOwnerID uint64 `json:"-"`
}
