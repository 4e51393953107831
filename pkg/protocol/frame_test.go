package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
)

func codecs() []codec.Codec {
	return []codec.Codec{codec.NewJSON(), codec.NewCBOR()}
}

func TestEncodeDecode(t *testing.T) {
	messages := []Message{
		Authenticate{UserID: "u1"},
		JoinProject{ProjectID: "P1"},
		IssueCreated{Issue: models.Issue{ID: "i1", Key: "PROJ-1", ProjectID: "P1", Title: "Login broken"}},
		IssueUpdated{ID: "i1", ProjectID: "P1", Changes: map[string]any{"title": "Login fixed"}},
		IssueStatusChanged{ID: "i1", Status: "done"},
		IssueDeleted{ID: "abc123"},
		SprintCreated{Sprint: models.Sprint{ID: "s1", ProjectID: "P1", Name: "Sprint 1"}},
		CommentAdded{Comment: models.Comment{ID: "c1", IssueID: "i1", Content: "LGTM"}},
		UserJoined{IssueID: "i1", Participant: models.Participant{UserID: "u2", UserName: "Bo"}},
		CursorUpdate{IssueID: "i1", UserID: "u2", UserName: "Bo", Field: "title", Position: 9},
		EditOperation{EditOperation: models.EditOperation{
			UserID: "u2", IssueID: "i1", Field: "description",
			Kind: models.OperationInsert, Position: 3, Content: "abc", Timestamp: 1700000000000,
		}},
		TypingStart{IssueID: "i1", UserID: "u2", Field: "description"},
		EditConflict{Conflict: models.Conflict{IssueID: "i1", Field: "title", Details: map[string]any{"reason": "stale"}}},
	}

	for _, c := range codecs() {
		for _, msg := range messages {
			t.Run(c.Name()+"/"+msg.Event().String(), func(t *testing.T) {
				raw, err := Encode(c, msg)
				require.NoError(t, err)

				got, err := Decode(c, raw)
				require.NoError(t, err)
				assert.Equal(t, msg.Event(), got.Event())
				assert.IsType(t, msg, got)
			})
		}
	}
}

func TestDecodeKeepsPayload(t *testing.T) {
	c := codec.NewJSON()
	raw := []byte(`{"event":"cursor-update","data":{"issueId":"i1","userId":"u2","userName":"Bo","field":"title","position":9}}`)

	msg, err := Decode(c, raw)
	require.NoError(t, err)

	cursor, ok := msg.(CursorUpdate)
	require.True(t, ok)
	assert.Equal(t, "i1", cursor.DocumentID())
	assert.Equal(t, "u2", cursor.SenderID())
	assert.Equal(t, 9, cursor.Position)
}

func TestDecodeErrors(t *testing.T) {
	c := codec.NewJSON()

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not a frame", `[1,2,3]`, ErrMalformedMessage},
		{"garbage", `{{{`, ErrMalformedMessage},
		{"missing event", `{"data":{}}`, ErrMalformedMessage},
		{"unknown event", `{"event":"issue:archived","data":{}}`, ErrUnknownEvent},
		{"missing required id", `{"event":"issue:deleted","data":{}}`, ErrMalformedMessage},
		{"wrong type", `{"event":"cursor-update","data":{"issueId":"i1","userId":"u2","field":"title","position":"nine"}}`, ErrMalformedMessage},
		{"negative position", `{"event":"cursor-update","data":{"issueId":"i1","userId":"u2","field":"title","position":-1}}`, ErrMalformedMessage},
		{"bad operation kind", `{"event":"edit-operation","data":{"issueId":"i1","userId":"u2","field":"title","type":"move","position":1}}`, ErrMalformedMessage},
		{"participant without id", `{"event":"active-users","data":{"issueId":"i1","users":[{"userName":"x"}]}}`, ErrMalformedMessage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(c, []byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestAuthenticatedWithoutPayload(t *testing.T) {
	msg, err := Decode(codec.NewJSON(), []byte(`{"event":"authenticated"}`))
	require.NoError(t, err)
	assert.Equal(t, Authenticated{}, msg)
}

func TestEncodeRejectsInvalidOutbound(t *testing.T) {
	_, err := Encode(codec.NewJSON(), JoinProject{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
