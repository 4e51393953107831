package protocol

import "github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"

// Message is the closed set of payloads that travel in a Frame.
type Message interface {
	Event() Event
	message()
}

// Sender is implemented by messages that name the user who caused them.
// The connection uses it to drop a client's own broadcasts on ingress.
type Sender interface {
	SenderID() string
}

// Scoped is implemented by messages that belong to one document.
type Scoped interface {
	DocumentID() string
}

type Authenticate struct {
	UserID string `json:"userId" validate:"required"`
}

type Authenticated struct {
	UserID string `json:"userId,omitempty"`
}

type JoinProject struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type LeaveProject struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type IssueCreated struct {
	models.Issue
}

// IssueUpdated carries only the fields that changed, keyed by their wire names.
type IssueUpdated struct {
	ID        string         `json:"id" validate:"required"`
	ProjectID string         `json:"projectId,omitempty"`
	Changes   map[string]any `json:"changes" validate:"required"`
}

type IssueStatusChanged struct {
	ID        string `json:"id" validate:"required"`
	ProjectID string `json:"projectId,omitempty"`
	Status    string `json:"status" validate:"required"`
}

type IssueDeleted struct {
	ID        string `json:"id" validate:"required"`
	ProjectID string `json:"projectId,omitempty"`
}

type SprintCreated struct {
	models.Sprint
}

type SprintUpdated struct {
	models.Sprint
}

type SprintDeleted struct {
	ID        string `json:"id" validate:"required"`
	ProjectID string `json:"projectId,omitempty"`
}

type CommentAdded struct {
	models.Comment
}

type JoinEditSession struct {
	IssueID    string `json:"issueId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

type LeaveEditSession struct {
	IssueID string `json:"issueId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

// ActiveUsers is the roster snapshot sent to a client after it joins.
type ActiveUsers struct {
	IssueID string               `json:"issueId" validate:"required"`
	Users   []models.Participant `json:"users" validate:"dive"`
}

type UserJoined struct {
	IssueID string `json:"issueId" validate:"required"`
	models.Participant
}

type UserLeft struct {
	IssueID  string `json:"issueId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName,omitempty"`
}

type CursorUpdate struct {
	IssueID  string `json:"issueId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
	Field    string `json:"field" validate:"required"`
	Position int    `json:"position" validate:"gte=0"`
	Color    string `json:"color,omitempty"`
}

type EditOperation struct {
	models.EditOperation
}

type TypingStart struct {
	IssueID  string `json:"issueId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
	Field    string `json:"field" validate:"required"`
}

type TypingStop struct {
	IssueID  string `json:"issueId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
	Field    string `json:"field" validate:"required"`
}

// DocumentUpdated reports a saved change to the issue being edited.
type DocumentUpdated struct {
	IssueID string         `json:"issueId" validate:"required"`
	UserID  string         `json:"userId,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

type EditConflict struct {
	models.Conflict
}

func (Authenticate) Event() Event       { return EventAuthenticate }
func (Authenticated) Event() Event      { return EventAuthenticated }
func (JoinProject) Event() Event        { return EventJoinProject }
func (LeaveProject) Event() Event       { return EventLeaveProject }
func (IssueCreated) Event() Event       { return EventIssueCreated }
func (IssueUpdated) Event() Event       { return EventIssueUpdated }
func (IssueStatusChanged) Event() Event { return EventIssueStatusChanged }
func (IssueDeleted) Event() Event       { return EventIssueDeleted }
func (SprintCreated) Event() Event      { return EventSprintCreated }
func (SprintUpdated) Event() Event      { return EventSprintUpdated }
func (SprintDeleted) Event() Event      { return EventSprintDeleted }
func (CommentAdded) Event() Event       { return EventCommentAdded }
func (JoinEditSession) Event() Event    { return EventJoinEditSession }
func (LeaveEditSession) Event() Event   { return EventLeaveEditSession }
func (ActiveUsers) Event() Event        { return EventActiveUsers }
func (UserJoined) Event() Event         { return EventUserJoined }
func (UserLeft) Event() Event           { return EventUserLeft }
func (CursorUpdate) Event() Event       { return EventCursorUpdate }
func (EditOperation) Event() Event      { return EventEditOperation }
func (TypingStart) Event() Event        { return EventTypingStart }
func (TypingStop) Event() Event         { return EventTypingStop }
func (DocumentUpdated) Event() Event    { return EventDocumentUpdated }
func (EditConflict) Event() Event       { return EventEditConflict }

func (Authenticate) message()       {}
func (Authenticated) message()      {}
func (JoinProject) message()        {}
func (LeaveProject) message()       {}
func (IssueCreated) message()       {}
func (IssueUpdated) message()       {}
func (IssueStatusChanged) message() {}
func (IssueDeleted) message()       {}
func (SprintCreated) message()      {}
func (SprintUpdated) message()      {}
func (SprintDeleted) message()      {}
func (CommentAdded) message()       {}
func (JoinEditSession) message()    {}
func (LeaveEditSession) message()   {}
func (ActiveUsers) message()        {}
func (UserJoined) message()         {}
func (UserLeft) message()           {}
func (CursorUpdate) message()       {}
func (EditOperation) message()      {}
func (TypingStart) message()        {}
func (TypingStop) message()         {}
func (DocumentUpdated) message()    {}
func (EditConflict) message()       {}

func (m JoinEditSession) SenderID() string  { return m.UserID }
func (m LeaveEditSession) SenderID() string { return m.UserID }
func (m UserJoined) SenderID() string       { return m.Participant.UserID }
func (m UserLeft) SenderID() string         { return m.UserID }
func (m CursorUpdate) SenderID() string     { return m.UserID }
func (m EditOperation) SenderID() string    { return m.UserID }
func (m TypingStart) SenderID() string      { return m.UserID }
func (m TypingStop) SenderID() string       { return m.UserID }
func (m DocumentUpdated) SenderID() string  { return m.UserID }
func (m EditConflict) SenderID() string     { return m.UserID }

func (m JoinEditSession) DocumentID() string  { return m.IssueID }
func (m LeaveEditSession) DocumentID() string { return m.IssueID }
func (m ActiveUsers) DocumentID() string      { return m.IssueID }
func (m UserJoined) DocumentID() string       { return m.IssueID }
func (m UserLeft) DocumentID() string         { return m.IssueID }
func (m CursorUpdate) DocumentID() string     { return m.IssueID }
func (m EditOperation) DocumentID() string    { return m.IssueID }
func (m TypingStart) DocumentID() string      { return m.IssueID }
func (m TypingStop) DocumentID() string       { return m.IssueID }
func (m DocumentUpdated) DocumentID() string  { return m.IssueID }
func (m EditConflict) DocumentID() string     { return m.IssueID }
