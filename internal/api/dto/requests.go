package dto

// ConfirmRequest is the body of POST /api/transactions/{id}/confirm.
type ConfirmRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Notes      string `json:"notes,omitempty"`
}

// RejectRequest is the body of POST /api/transactions/{id}/reject.
// The body is optional.
type RejectRequest struct {
	Notes string `json:"notes,omitempty"`
}

// AlertUpdateRequest is the body of PATCH /api/alerts/{id}.
type AlertUpdateRequest struct {
	State string `json:"state"`
}
