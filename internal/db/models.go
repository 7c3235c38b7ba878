// Package db contains persistence models and query helpers for PicManager.
package db

// Roles a user row can carry. Root is seeded once by setup; admins are
// appointed by root and are the only accounts with a password hash.
const (
	RoleRoot  = "root"
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Statuses of a pending request.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// User is a catalog account identified by an external account number.
type User struct {
	ID        int64
	Account   string
	Nickname  string
	Role      string
	PassHash  string
	CreatedAt int64
	UpdatedAt int64
}

// Session is a persisted login, either a user session (UserID set) or a
// guest session (GuestIP set). Exactly one of the two is non-nil.
type Session struct {
	Token        string
	UserID       *int64
	GuestIP      *string
	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
}

// PendingRequest is one proposed catalog change awaiting (or past) review.
// Payload is the JSON-encoded per-type body; TempPath and OriginalName are
// set only for image uploads.
type PendingRequest struct {
	ID              int64
	RequestType     string
	Status          string
	UserID          *int64
	GuestIP         *string
	ImageID         *string
	Payload         string
	TempPath        string
	OriginalName    string
	RejectionReason string
	CreatedAt       int64
	ReviewedAt      *int64
	ReviewedBy      *int64
}

// Image is an approved catalog entry. ImageID is the public ten-character
// uppercase hex identifier; FilePath is relative to the store directory.
type Image struct {
	ImageID      string
	PID          string
	Description  string
	OriginalName string
	Ext          string
	SizeBytes    int64
	FilePath     string
	CreatedAt    int64
	UpdatedAt    int64
}

// Group is a named collection of characters.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   int64
	UpdatedAt   int64
}

// Character belongs to exactly one group; its name is unique per group.
type Character struct {
	ID          int64
	GroupID     int64
	Name        string
	Description string
	CreatedAt   int64
	UpdatedAt   int64
}
