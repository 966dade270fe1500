package model

import "time"

// Listing statuses (listings.status).
const (
	ListingAvailable   = "AVAILABLE"
	ListingReserved    = "RESERVED"
	ListingCancelled   = "CANCELLED"
	ListingExpired     = "EXPIRED"
	ListingDistributed = "DISTRIBUTED"
)

// Listing is a surplus-food offer owned by exactly one business.
//
// Fields:
//  ID             – primary key identifier.
//  BusinessID     – owning business (listings.business_id).
//  Title          – short title, at most 100 characters.
//  Description    – optional free text.
//  Quantity       – positive amount expressed in Unit.
//  Unit           – unit label (kg, portions, ...).
//  AvailableFrom  – start of the pickup window.
//  AvailableUntil – end of the pickup window; always after AvailableFrom.
//  Urgent         – flagged by the business for quick pickup.
//  Allergens      – optional allergen notes.
//  Temperature    – optional storage temperature hint.
//  Status         – stored status, see the Listing* constants.
type Listing struct {
	ID             uint64    `json:"id"`
	BusinessID     uint64    `json:"business_id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description,omitempty"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit"`
	AvailableFrom  time.Time `json:"available_from"`
	AvailableUntil time.Time `json:"available_until"`
	Urgent         bool      `json:"urgent"`
	Allergens      *string   `json:"allergens,omitempty"`
	Temperature    *string   `json:"temperature,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Lapsed reports whether the pickup window closed before now.
func (l Listing) Lapsed(now time.Time) bool { return l.AvailableUntil.Before(now) }

// EffectiveStatus is the status a reader should see.  An AVAILABLE listing
// whose window has closed reads as EXPIRED; nothing writes that transition.
func (l Listing) EffectiveStatus(now time.Time) string {
	if l.Status == ListingAvailable && l.Lapsed(now) {
		return ListingExpired
	}
	return l.Status
}
