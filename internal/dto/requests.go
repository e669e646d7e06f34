package dto

// ConnectRequest carries the OAuth authorization code for connecting a calendar
type ConnectRequest struct {
	Code         string `json:"code" binding:"required"`
	AccountEmail string `json:"account_email" binding:"required,email"`
}

// SyncTriggerRequest asks for a manual sync. Without an entity it requests a
// full pass.
type SyncTriggerRequest struct {
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Full       bool   `json:"full"`
}

// StatusResponse is the credential health surface shown to the user
type StatusResponse struct {
	Connected    bool    `json:"connected"`
	Status       string  `json:"status,omitempty"`
	AccountEmail string  `json:"account_email,omitempty"`
	LastSyncAt   *string `json:"last_sync_at,omitempty"`
	LastError    *string `json:"last_error,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
