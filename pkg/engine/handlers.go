package engine

import (
	"errors"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store"
)

// handleMessage applies one inbound message. Every branch is idempotent:
// replaying a message leaves the store as it was after the first delivery.
func (e *Engine) handleMessage(msg protocol.Message) {
	room := e.currentState().Room

	switch m := msg.(type) {
	case protocol.Authenticated:
		e.apply(AuthAcknowledged{})

	case protocol.IssueCreated:
		if m.ProjectID != room {
			e.logger.Debug("ignoring issue outside the current room",
				"issue", m.ID, "project", m.ProjectID, "room", room)
			return
		}
		e.mutate(store.ChangeUpsert, m.ID, e.store.UpsertIssue(m.Issue))

	case protocol.IssueUpdated:
		e.mergeIssue(room, m.ID, m.ProjectID, m.Changes)

	case protocol.IssueStatusChanged:
		e.mergeIssue(room, m.ID, m.ProjectID, map[string]any{"status": m.Status})

	case protocol.IssueDeleted:
		e.mutate(store.ChangeDelete, m.ID, e.store.DeleteIssue(m.ID))

	case protocol.SprintCreated:
		e.upsertSprint(room, m.Sprint)

	case protocol.SprintUpdated:
		e.upsertSprint(room, m.Sprint)

	case protocol.SprintDeleted:
		e.mutate(store.ChangeDelete, m.ID, e.store.DeleteSprint(m.ID))

	case protocol.CommentAdded:
		e.comments.Publish(m.Comment)

	default:
		e.logger.Debug("engine: unhandled message", "event", msg.Event().String())
	}
}

// mergeIssue merges changes into an issue already known to be in room.
// Updates for unknown issues are dropped; the next full load brings them in.
func (e *Engine) mergeIssue(room, id, projectID string, changes map[string]any) {
	if projectID != "" && projectID != room {
		return
	}

	existing, ok := e.store.Issue(id)
	if !ok {
		e.logger.Debug("ignoring update for unknown issue", "issue", id)
		return
	}
	if existing.ProjectID != room {
		e.logger.Debug("ignoring update for issue outside the current room",
			"issue", id, "project", existing.ProjectID, "room", room)
		return
	}

	_, err := e.store.MergeIssue(id, changes)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between the lookup and the merge.
		return
	}
	e.mutate(store.ChangeMerge, id, err)
}

func (e *Engine) upsertSprint(room string, sprint models.Sprint) {
	if sprint.ProjectID != room {
		e.logger.Debug("ignoring sprint outside the current room",
			"sprint", sprint.ID, "project", sprint.ProjectID, "room", room)
		return
	}
	e.mutate(store.ChangeUpsert, sprint.ID, e.store.UpsertSprint(sprint))
}

func (e *Engine) mutate(kind store.ChangeKind, id string, err error) {
	if err != nil {
		e.logger.Error("engine: failed to apply server change", "kind", string(kind), "id", id, "error", err)
		return
	}
	e.metrics.AddStoreMutation(string(kind))
}
