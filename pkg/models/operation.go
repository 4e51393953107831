package models

// OperationKind is the kind of a fine-grained edit.
type OperationKind string

const (
	OperationInsert  OperationKind = "insert"
	OperationDelete  OperationKind = "delete"
	OperationReplace OperationKind = "replace"
)

// Valid reports whether k is one of the known kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationInsert, OperationDelete, OperationReplace:
		return true
	}
	return false
}

// EditOperation is a single edit to one field of an issue. Received
// operations are handed to the editor as-is; nothing here applies them.
type EditOperation struct {
	ID        string        `json:"id,omitempty"`
	UserID    string        `json:"userId" validate:"required"`
	IssueID   string        `json:"issueId" validate:"required"`
	Field     string        `json:"field" validate:"required"`
	Kind      OperationKind `json:"type" validate:"required,oneof=insert delete replace"`
	Position  int           `json:"position" validate:"gte=0"`
	Content   string        `json:"content,omitempty"`
	Length    int           `json:"length,omitempty" validate:"gte=0"`
	Timestamp int64         `json:"timestamp"`
}

// Conflict is an opaque conflict notification. Details carries whatever the
// server reported; it is not interpreted.
type Conflict struct {
	IssueID string         `json:"issueId"`
	Field   string         `json:"field,omitempty"`
	UserID  string         `json:"userId,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
