package entity

// Client approval of a sent measurement
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Listing limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Audit identity used when the caller does not supply one
const SystemActor = "system"
