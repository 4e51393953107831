package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
)

var (
	// ErrMalformedMessage is returned when a frame or its payload cannot be
	// decoded or fails validation.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownEvent is returned for frames whose event name is not part of
	// the vocabulary.
	ErrUnknownEvent = errors.New("unknown event")
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Event Event         `json:"event"`
	Data  codec.RawData `json:"data,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type decodeFunc func(u codec.Unmarshaler, data codec.RawData) (Message, error)

func decodeAs[M Message](u codec.Unmarshaler, data codec.RawData) (Message, error) {
	var m M
	if !data.IsNull() {
		if err := u.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	if err := validate.Struct(m); err != nil {
		return nil, err
	}
	return m, nil
}

var decoders = map[Event]decodeFunc{
	EventAuthenticate:       decodeAs[Authenticate],
	EventAuthenticated:      decodeAs[Authenticated],
	EventJoinProject:        decodeAs[JoinProject],
	EventLeaveProject:       decodeAs[LeaveProject],
	EventIssueCreated:       decodeAs[IssueCreated],
	EventIssueUpdated:       decodeAs[IssueUpdated],
	EventIssueStatusChanged: decodeAs[IssueStatusChanged],
	EventIssueDeleted:       decodeAs[IssueDeleted],
	EventSprintCreated:      decodeAs[SprintCreated],
	EventSprintUpdated:      decodeAs[SprintUpdated],
	EventSprintDeleted:      decodeAs[SprintDeleted],
	EventCommentAdded:       decodeAs[CommentAdded],
	EventJoinEditSession:    decodeAs[JoinEditSession],
	EventLeaveEditSession:   decodeAs[LeaveEditSession],
	EventActiveUsers:        decodeAs[ActiveUsers],
	EventUserJoined:         decodeAs[UserJoined],
	EventUserLeft:           decodeAs[UserLeft],
	EventCursorUpdate:       decodeAs[CursorUpdate],
	EventEditOperation:      decodeAs[EditOperation],
	EventTypingStart:        decodeAs[TypingStart],
	EventTypingStop:         decodeAs[TypingStop],
	EventDocumentUpdated:    decodeAs[DocumentUpdated],
	EventEditConflict:       decodeAs[EditConflict],
}

// Decode turns a raw websocket message into a validated Message.
func Decode(u codec.Unmarshaler, raw []byte) (Message, error) {
	var f Frame
	if err := u.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: frame: %v", ErrMalformedMessage, err)
	}
	return DecodeFrame(u, f)
}

// DecodeFrame decodes the payload of an already unwrapped frame.
func DecodeFrame(u codec.Unmarshaler, f Frame) (Message, error) {
	if f.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedMessage)
	}

	decode, ok := decoders[f.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, f.Event)
	}

	msg, err := decode(u, f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, f.Event, err)
	}
	return msg, nil
}

// Encode validates msg and wraps it in a Frame.
func Encode(m codec.Marshaler, msg Message) ([]byte, error) {
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msg.Event(), err)
	}

	data, err := m.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Event(), err)
	}

	return m.Marshal(Frame{Event: msg.Event(), Data: data})
}
