package model

import "time"

// Document statuses and kinds.
const (
	DocumentPending  = "PENDING"
	DocumentAccepted = "ACCEPTED"
	DocumentRejected = "REJECTED"

	DocumentIdentity     = "IDENTITY"
	DocumentBusiness     = "BUSINESS"
	DocumentOrganization = "ORGANIZATION"
	DocumentOther        = "OTHER"
)

// ValidDocumentKind reports whether k is an accepted document kind.
func ValidDocumentKind(k string) bool {
	switch k {
	case DocumentIdentity, DocumentBusiness, DocumentOrganization, DocumentOther:
		return true
	}
	return false
}

// Document is an uploaded eligibility proof.  StorageKey is generated by
// the server; OriginalName is kept for display and downloads only.
type Document struct {
	ID           uint64    `json:"id"`
	UserID       uint64    `json:"user_id"`
	Kind         string    `json:"kind"`
	StorageKey   string    `json:"-"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       string    `json:"status"`
	Comment      *string   `json:"comment,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
