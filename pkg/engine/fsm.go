package engine

import "fmt"

// Phase is the connection phase of the sync engine.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAuthenticated
	PhaseRoomJoined
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRoomJoined:
		return "room-joined"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is everything the transition function knows.
type State struct {
	Phase  Phase
	UserID string
	// Room is the project the engine is, or wants to be, subscribed to.
	// It survives transport loss so it can be re-joined after the next
	// authentication.
	Room string
	// TransportOpen is true between a transport open and its close.
	TransportOpen bool
}

// Usable reports whether the connection is authenticated.
func (s State) Usable() bool {
	return s.Phase == PhaseAuthenticated || s.Phase == PhaseRoomJoined
}

// Event is an input of the state machine.
type Event interface {
	fmt.Stringer
	event()
}

type ConnectRequested struct{ UserID string }
type TransportOpened struct{}
type TransportClosed struct{}
type TransportFailed struct{}
type AuthAcknowledged struct{}
type JoinRequested struct{ ProjectID string }
type LeaveRequested struct{ ProjectID string }
type DisconnectRequested struct{}

func (ConnectRequested) event()    {}
func (TransportOpened) event()     {}
func (TransportClosed) event()     {}
func (TransportFailed) event()     {}
func (AuthAcknowledged) event()    {}
func (JoinRequested) event()       {}
func (LeaveRequested) event()      {}
func (DisconnectRequested) event() {}

func (e ConnectRequested) String() string  { return "connect-requested(" + e.UserID + ")" }
func (TransportOpened) String() string     { return "transport-opened" }
func (TransportClosed) String() string     { return "transport-closed" }
func (TransportFailed) String() string     { return "transport-failed" }
func (AuthAcknowledged) String() string    { return "auth-acknowledged" }
func (e JoinRequested) String() string     { return "join-requested(" + e.ProjectID + ")" }
func (e LeaveRequested) String() string    { return "leave-requested(" + e.ProjectID + ")" }
func (DisconnectRequested) String() string { return "disconnect-requested" }

// Effect is an output of the state machine, executed by the Engine in order.
type Effect interface {
	fmt.Stringer
	effect()
}

type OpenTransport struct{}
type CloseTransport struct{}
type EmitAuthenticate struct{ UserID string }
type EmitJoin struct{ ProjectID string }
type EmitLeave struct{ ProjectID string }
type PurgeProject struct{ ProjectID string }

func (OpenTransport) effect()    {}
func (CloseTransport) effect()   {}
func (EmitAuthenticate) effect() {}
func (EmitJoin) effect()         {}
func (EmitLeave) effect()        {}
func (PurgeProject) effect()     {}

func (OpenTransport) String() string      { return "open-transport" }
func (CloseTransport) String() string     { return "close-transport" }
func (e EmitAuthenticate) String() string { return "emit-authenticate(" + e.UserID + ")" }
func (e EmitJoin) String() string         { return "emit-join(" + e.ProjectID + ")" }
func (e EmitLeave) String() string        { return "emit-leave(" + e.ProjectID + ")" }
func (e PurgeProject) String() string     { return "purge-project(" + e.ProjectID + ")" }

// Transition is the pure transition function of the engine.
// Events that do not apply in the current state return it unchanged with
// no effects.
func Transition(s State, e Event) (State, []Effect) {
	switch e := e.(type) {
	case ConnectRequested:
		if s.Phase != PhaseDisconnected {
			return s, nil
		}
		s.Phase = PhaseConnecting
		s.UserID = e.UserID
		s.TransportOpen = false
		return s, []Effect{OpenTransport{}}

	case TransportOpened:
		if s.Phase == PhaseDisconnected {
			return s, nil
		}
		// A fresh transport is not authenticated, whatever the phase was.
		s.Phase = PhaseConnecting
		s.TransportOpen = true
		return s, []Effect{EmitAuthenticate{UserID: s.UserID}}

	case TransportClosed:
		if s.Phase == PhaseDisconnected {
			return s, nil
		}
		s.Phase = PhaseConnecting
		s.TransportOpen = false
		return s, nil

	case TransportFailed:
		if s.Phase == PhaseDisconnected {
			return s, nil
		}
		s.Phase = PhaseDisconnected
		s.TransportOpen = false
		return s, nil

	case AuthAcknowledged:
		if s.Phase != PhaseConnecting || !s.TransportOpen {
			return s, nil
		}
		if s.Room == "" {
			s.Phase = PhaseAuthenticated
			return s, nil
		}
		s.Phase = PhaseRoomJoined
		return s, []Effect{EmitJoin{ProjectID: s.Room}}

	case JoinRequested:
		if e.ProjectID == "" || e.ProjectID == s.Room {
			return s, nil
		}
		prev := s.Room
		s.Room = e.ProjectID

		var effects []Effect
		switch s.Phase {
		case PhaseRoomJoined:
			effects = append(effects, EmitLeave{ProjectID: prev}, PurgeProject{ProjectID: prev})
		case PhaseAuthenticated:
			s.Phase = PhaseRoomJoined
		default:
			// Recorded; joined after the next authentication.
			if prev != "" {
				effects = append(effects, PurgeProject{ProjectID: prev})
			}
			return s, effects
		}
		return s, append(effects, EmitJoin{ProjectID: e.ProjectID})

	case LeaveRequested:
		if e.ProjectID == "" || e.ProjectID != s.Room {
			return s, nil
		}
		s.Room = ""
		if s.Phase == PhaseRoomJoined {
			s.Phase = PhaseAuthenticated
			return s, []Effect{EmitLeave{ProjectID: e.ProjectID}, PurgeProject{ProjectID: e.ProjectID}}
		}
		return s, []Effect{PurgeProject{ProjectID: e.ProjectID}}

	case DisconnectRequested:
		var effects []Effect
		if s.Phase == PhaseRoomJoined {
			effects = append(effects, EmitLeave{ProjectID: s.Room})
		}
		if s.Phase != PhaseDisconnected {
			effects = append(effects, CloseTransport{})
		}
		if s.Room != "" {
			effects = append(effects, PurgeProject{ProjectID: s.Room})
		}
		return State{Phase: PhaseDisconnected}, effects
	}

	return s, nil
}
