package protocol

// Event names a frame.
type Event string

// Project room vocabulary.
const (
	EventAuthenticate       Event = "authenticate"
	EventAuthenticated      Event = "authenticated"
	EventJoinProject        Event = "join_project"
	EventLeaveProject       Event = "leave_project"
	EventIssueCreated       Event = "issue:created"
	EventIssueUpdated       Event = "issue:updated"
	EventIssueStatusChanged Event = "issue:status_changed"
	EventIssueDeleted       Event = "issue:deleted"
	EventSprintCreated      Event = "sprint:created"
	EventSprintUpdated      Event = "sprint:updated"
	EventSprintDeleted      Event = "sprint:deleted"
	EventCommentAdded       Event = "comment:added"
)

// Document session vocabulary.
const (
	EventJoinEditSession  Event = "join-edit-session"
	EventLeaveEditSession Event = "leave-edit-session"
	EventActiveUsers      Event = "active-users"
	EventUserJoined       Event = "user-joined"
	EventUserLeft         Event = "user-left"
	EventCursorUpdate     Event = "cursor-update"
	EventEditOperation    Event = "edit-operation"
	EventTypingStart      Event = "typing-start"
	EventTypingStop       Event = "typing-stop"
	EventDocumentUpdated  Event = "issue-updated"
	EventEditConflict     Event = "edit-conflict"
)

// ProjectEvents are the inbound events the sync engine consumes.
var ProjectEvents = []Event{
	EventAuthenticated,
	EventIssueCreated,
	EventIssueUpdated,
	EventIssueStatusChanged,
	EventIssueDeleted,
	EventSprintCreated,
	EventSprintUpdated,
	EventSprintDeleted,
	EventCommentAdded,
}

// DocumentEvents are the inbound events a document session consumes.
var DocumentEvents = []Event{
	EventActiveUsers,
	EventUserJoined,
	EventUserLeft,
	EventCursorUpdate,
	EventEditOperation,
	EventTypingStart,
	EventTypingStop,
	EventDocumentUpdated,
	EventEditConflict,
}

func (e Event) String() string {
	return string(e)
}
