package model

import "time"

// Business is a food source that publishes listings.  It mirrors the
// `businesses` table.  Approved is flipped by an admin directly or through
// an accepted BUSINESS document.
type Business struct {
	ID             uint64    `json:"id"`
	OwnerUserID    uint64    `json:"owner_user_id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	Address        string    `json:"address"`
	PostalCode     string    `json:"postal_code"`
	Locality       string    `json:"locality"`
	Canton         string    `json:"canton"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Website        *string   `json:"website,omitempty"`
	RegistrationID string    `json:"registration_id"`
	Approved       bool      `json:"approved"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Organization is a recipient that reserves listings.  Same shape as
// Business, stored in `organizations`.
type Organization struct {
	ID             uint64    `json:"id"`
	OwnerUserID    uint64    `json:"owner_user_id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	Address        string    `json:"address"`
	PostalCode     string    `json:"postal_code"`
	Locality       string    `json:"locality"`
	Canton         string    `json:"canton"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Website        *string   `json:"website,omitempty"`
	RegistrationID string    `json:"registration_id"`
	Approved       bool      `json:"approved"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PartnerProfile carries the owner-editable fields shared by Business and
// Organization.  Approval is deliberately absent.
type PartnerProfile struct {
	Name           string
	Description    *string
	Address        string
	PostalCode     string
	Locality       string
	Canton         string
	Latitude       *float64
	Longitude      *float64
	Website        *string
	RegistrationID string
}
