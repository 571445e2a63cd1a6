package domain

import "time"

// OperationType classifies a destructive or high-impact document operation.
type OperationType string

const (
	OpDeleteRecords OperationType = "delete_records"
	OpDeleteColumn  OperationType = "delete_column"
	OpUpdateRecords OperationType = "update_records"
	OpUpdateColumn  OperationType = "update_column"
	// OpTruncateTable is reserved; no tool currently produces it.
	OpTruncateTable OperationType = "truncate_table"
)

// ConfirmationStatus is the lifecycle state reported to API callers.
type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationRejected ConfirmationStatus = "rejected"
	ConfirmationExpired  ConfirmationStatus = "expired"
)

// FieldChange records a before/after diff for one record in an update preview.
type FieldChange struct {
	RecordID int            `json:"record_id"`
	Before   map[string]any `json:"before"`
	After    map[string]any `json:"after"`
	Fields   []string       `json:"fields"` // names of the fields being changed
}

// OperationPreview is a read-only, point-in-time summary of what a pending
// operation would change. Shown to the user before they approve.
type OperationPreview struct {
	OperationType OperationType    `json:"operation_type"`
	TableID       string           `json:"table_id"`
	Description   string           `json:"description"`
	AffectedCount int              `json:"affected_count"`
	Samples       []map[string]any `json:"samples,omitempty"`
	Changes       []FieldChange    `json:"changes,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	IsReversible  bool             `json:"is_reversible"`
}

// ConfirmationRequest is a pending approval for a gated tool call. ToolArgs
// carries the document id so the call can be replayed after the originating
// chat request is gone.
type ConfirmationRequest struct {
	ID            string           `json:"confirmation_id"`
	ToolName      string           `json:"tool_name"`
	ToolArgs      map[string]any   `json:"tool_args"`
	OperationType OperationType    `json:"operation_type"`
	Preview       OperationPreview `json:"preview"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
}
