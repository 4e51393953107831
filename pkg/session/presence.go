package session

import (
	"time"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
)

// presence is the roster, cursors and typing indicators of one document.
// It is not safe for concurrent use; Session guards it.
//
// Entries of the local user are never stored, and no cursor or typing
// indicator outlives the departure of its owner.
type presence struct {
	self string

	participants []models.Participant
	cursors      []models.Cursor
	typing       []models.TypingIndicator

	// lastSeen is the last time anything was heard from a user.
	lastSeen map[string]time.Time
}

func newPresence(self string) *presence {
	return &presence{
		self:     self,
		lastSeen: make(map[string]time.Time),
	}
}

func (p *presence) indexOf(userID string) int {
	for i, u := range p.participants {
		if u.UserID == userID {
			return i
		}
	}
	return -1
}

func (p *presence) colorOf(userID string) string {
	if i := p.indexOf(userID); i >= 0 && p.participants[i].Color != "" {
		return p.participants[i].Color
	}
	return ColorFor(userID)
}

func (p *presence) touch(userID string, now time.Time) {
	p.lastSeen[userID] = now
}

// replace swaps the roster for a server snapshot and drops the cursors and
// typing indicators of users that are no longer in it. It returns the
// change in participant count.
func (p *presence) replace(users []models.Participant, now time.Time) int {
	before := len(p.participants)

	roster := make([]models.Participant, 0, len(users))
	present := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u.UserID == p.self || u.UserID == "" {
			continue
		}
		if _, dup := present[u.UserID]; dup {
			continue
		}
		present[u.UserID] = struct{}{}
		if u.Color == "" {
			u.Color = ColorFor(u.UserID)
		}
		roster = append(roster, u)
		p.touch(u.UserID, now)
	}
	p.participants = roster

	p.cursors = filter(p.cursors, func(c models.Cursor) bool {
		_, ok := present[c.UserID]
		return ok
	})
	p.typing = filter(p.typing, func(t models.TypingIndicator) bool {
		_, ok := present[t.UserID]
		return ok
	})
	for id := range p.lastSeen {
		if _, ok := present[id]; !ok {
			delete(p.lastSeen, id)
		}
	}

	return len(p.participants) - before
}

// join appends u unless it is already present.
func (p *presence) join(u models.Participant, now time.Time) bool {
	if u.UserID == p.self || u.UserID == "" {
		return false
	}
	p.touch(u.UserID, now)
	if p.indexOf(u.UserID) >= 0 {
		return false
	}
	if u.Color == "" {
		u.Color = ColorFor(u.UserID)
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = now
	}
	p.participants = append(p.participants, u)
	return true
}

// leave removes the user with every cursor and typing indicator it owns.
// It reports whether the user was a participant.
func (p *presence) leave(userID string) bool {
	p.cursors = filter(p.cursors, func(c models.Cursor) bool { return c.UserID != userID })
	p.typing = filter(p.typing, func(t models.TypingIndicator) bool { return t.UserID != userID })
	delete(p.lastSeen, userID)

	i := p.indexOf(userID)
	if i < 0 {
		return false
	}
	p.participants = append(p.participants[:i:i], p.participants[i+1:]...)
	return true
}

// moveCursor stores c as the only cursor of its user.
func (p *presence) moveCursor(c models.Cursor, now time.Time) bool {
	if c.UserID == p.self || c.UserID == "" {
		return false
	}
	p.touch(c.UserID, now)
	if c.Color == "" {
		c.Color = p.colorOf(c.UserID)
	}
	for i := range p.cursors {
		if p.cursors[i].UserID == c.UserID {
			p.cursors[i] = c
			return true
		}
	}
	p.cursors = append(p.cursors, c)
	return true
}

func (p *presence) startTyping(t models.TypingIndicator, now time.Time) bool {
	if t.UserID == p.self || t.UserID == "" {
		return false
	}
	p.touch(t.UserID, now)
	for i := range p.typing {
		if p.typing[i].Key() == t.Key() {
			changed := p.typing[i] != t
			p.typing[i] = t
			return changed
		}
	}
	p.typing = append(p.typing, t)
	return true
}

func (p *presence) stopTyping(key models.TypingKey, now time.Time) bool {
	if key.UserID == p.self {
		return false
	}
	p.touch(key.UserID, now)
	before := len(p.typing)
	p.typing = filter(p.typing, func(t models.TypingIndicator) bool { return t.Key() != key })
	return len(p.typing) != before
}

// expire evicts every user not heard from since cutoff and returns the
// number of participants removed.
func (p *presence) expire(cutoff time.Time) (evicted []string, participants int) {
	for id, seen := range p.lastSeen {
		if seen.Before(cutoff) {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		if p.leave(id) {
			participants++
		}
	}
	return evicted, participants
}

func (p *presence) clear() int {
	n := len(p.participants)
	p.participants = nil
	p.cursors = nil
	p.typing = nil
	p.lastSeen = make(map[string]time.Time)
	return n
}

func (p *presence) snapshotParticipants() []models.Participant {
	return append([]models.Participant(nil), p.participants...)
}

func (p *presence) snapshotCursors() []models.Cursor {
	return append([]models.Cursor(nil), p.cursors...)
}

func (p *presence) snapshotTyping() []models.TypingIndicator {
	return append([]models.TypingIndicator(nil), p.typing...)
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	// Clear the tail so removed entries can be collected.
	var zero T
	for i := len(out); i < len(items); i++ {
		items[i] = zero
	}
	return out
}
