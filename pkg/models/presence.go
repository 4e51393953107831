package models

import "time"

// Participant is a remote user present in a document session.
type Participant struct {
	UserID     string    `json:"userId" validate:"required"`
	UserName   string    `json:"userName"`
	UserAvatar string    `json:"userAvatar,omitempty"`
	Color      string    `json:"color,omitempty"`
	JoinedAt   time.Time `json:"joinedAt,omitempty"`
}

// Cursor is the last known caret of a participant. Only one is kept per user.
type Cursor struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Field    string `json:"field"`
	Position int    `json:"position"`
	Color    string `json:"color,omitempty"`
}

// TypingIndicator marks a participant as typing in one field.
type TypingIndicator struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Field    string `json:"field"`
}

// TypingKey is the identity of a TypingIndicator.
type TypingKey struct {
	UserID string
	Field  string
}

func (t TypingIndicator) Key() TypingKey {
	return TypingKey{UserID: t.UserID, Field: t.Field}
}
