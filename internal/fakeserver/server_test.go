package fakeserver

import (
	"io"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

type rawClient struct {
	t     *testing.T
	conn  *gorilla.Conn
	codec codec.Codec
}

func dial(t *testing.T, s *Server, c codec.Codec) *rawClient {
	t.Helper()

	dialer := gorilla.Dialer{Subprotocols: []string{c.Name()}}
	conn, resp, err := dialer.Dial(s.URL(), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	return &rawClient{t: t, conn: conn, codec: c}
}

func (c *rawClient) send(msg protocol.Message) {
	c.t.Helper()

	data, err := protocol.Encode(c.codec, msg)
	require.NoError(c.t, err)

	mt := gorilla.TextMessage
	if c.codec.Binary() {
		mt = gorilla.BinaryMessage
	}
	require.NoError(c.t, c.conn.WriteMessage(mt, data))
}

func (c *rawClient) read() protocol.Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	msg, err := protocol.Decode(c.codec, data)
	require.NoError(c.t, err)
	return msg
}

func (c *rawClient) authenticate(userID string) {
	c.t.Helper()

	c.send(protocol.Authenticate{UserID: userID})
	assert.Equal(c.t, protocol.Authenticated{UserID: userID}, c.read())
}

func startServer(t *testing.T) *Server {
	t.Helper()

	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestAuthenticate(t *testing.T) {
	s := startServer(t)

	for _, c := range []codec.Codec{codec.NewJSON(), codec.NewCBOR()} {
		t.Run(c.Name(), func(t *testing.T) {
			client := dial(t, s, c)
			client.authenticate("u-" + c.Name())

			assert.Equal(t, []protocol.Message{protocol.Authenticate{UserID: "u-" + c.Name()}}, s.Received("u-"+c.Name()))
		})
	}
}

func TestRoomBroadcast(t *testing.T) {
	s := startServer(t)

	a := dial(t, s, codec.NewJSON())
	a.authenticate("A")
	a.send(protocol.JoinProject{ProjectID: "P1"})

	b := dial(t, s, codec.NewCBOR())
	b.authenticate("B")
	b.send(protocol.JoinProject{ProjectID: "P2"})

	require.Eventually(t, func() bool {
		return len(s.RoomMembers("P1")) == 1 && len(s.RoomMembers("P2")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	issue := models.Issue{ID: "I1", ProjectID: "P1", Title: "Fix login"}
	require.NoError(t, s.Broadcast("P1", protocol.IssueCreated{Issue: issue}))
	assert.Equal(t, protocol.IssueCreated{Issue: issue}, a.read())

	a.send(protocol.LeaveProject{ProjectID: "P1"})
	require.Eventually(t, func() bool {
		return len(s.RoomMembers("P1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDocumentSession(t *testing.T) {
	s := startServer(t)

	a := dial(t, s, codec.NewJSON())
	a.authenticate("A")
	a.send(protocol.JoinEditSession{IssueID: "ISSUE-1", UserID: "A", UserName: "Ann"})

	roster, ok := a.read().(protocol.ActiveUsers)
	require.True(t, ok)
	require.Len(t, roster.Users, 1)
	assert.Equal(t, "A", roster.Users[0].UserID)

	b := dial(t, s, codec.NewJSON())
	b.authenticate("B")
	b.send(protocol.JoinEditSession{IssueID: "ISSUE-1", UserID: "B", UserName: "Bob"})

	roster, ok = b.read().(protocol.ActiveUsers)
	require.True(t, ok)
	assert.Len(t, roster.Users, 2)

	joined, ok := a.read().(protocol.UserJoined)
	require.True(t, ok)
	assert.Equal(t, "B", joined.UserID)

	t.Run("relay excludes the sender", func(t *testing.T) {
		b.send(protocol.CursorUpdate{IssueID: "ISSUE-1", UserID: "B", UserName: "Bob", Field: "title", Position: 4})
		assert.Equal(t, protocol.CursorUpdate{IssueID: "ISSUE-1", UserID: "B", UserName: "Bob", Field: "title", Position: 4}, a.read())
	})

	t.Run("leave", func(t *testing.T) {
		b.send(protocol.LeaveEditSession{IssueID: "ISSUE-1", UserID: "B"})
		left, ok := a.read().(protocol.UserLeft)
		require.True(t, ok)
		assert.Equal(t, "B", left.UserID)
		assert.Equal(t, "Bob", left.UserName)
	})

	t.Run("socket loss leaves the document", func(t *testing.T) {
		b.send(protocol.JoinEditSession{IssueID: "ISSUE-1", UserID: "B", UserName: "Bob"})
		_ = b.read()
		_ = a.read()

		_ = b.conn.Close()
		left, ok := a.read().(protocol.UserLeft)
		require.True(t, ok)
		assert.Equal(t, "B", left.UserID)
		assert.Equal(t, []string{"A"}, s.DocumentMembers("ISSUE-1"))
	})
}

func TestEchoToSender(t *testing.T) {
	s := startServer(t)
	s.EchoToSender = true

	a := dial(t, s, codec.NewJSON())
	a.authenticate("A")
	a.send(protocol.JoinEditSession{IssueID: "ISSUE-1", UserID: "A"})
	_ = a.read()
	// The join announcement comes back too.
	_ = a.read()

	a.send(protocol.TypingStart{IssueID: "ISSUE-1", UserID: "A", Field: "description"})
	assert.Equal(t, protocol.TypingStart{IssueID: "ISSUE-1", UserID: "A", Field: "description"}, a.read())
}

func TestFailures(t *testing.T) {
	s := startServer(t)

	t.Run("ignore", func(t *testing.T) {
		s.FailOn(protocol.EventAuthenticate, FailureIgnore)
		defer s.FailOn(protocol.EventAuthenticate, FailureNone)

		c := dial(t, s, codec.NewJSON())
		c.send(protocol.Authenticate{UserID: "A"})

		require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := c.conn.ReadMessage()
		assert.Error(t, err)
	})

	t.Run("invalid response", func(t *testing.T) {
		s.FailOn(protocol.EventAuthenticate, FailureInvalidResponse)
		defer s.FailOn(protocol.EventAuthenticate, FailureNone)

		c := dial(t, s, codec.NewJSON())
		c.send(protocol.Authenticate{UserID: "A"})

		require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := c.conn.ReadMessage()
		require.NoError(t, err)
		_, err = protocol.Decode(c.codec, data)
		assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
	})

	t.Run("drop connection", func(t *testing.T) {
		s.FailOn(protocol.EventAuthenticate, FailureDropConnection)
		defer s.FailOn(protocol.EventAuthenticate, FailureNone)

		c := dial(t, s, codec.NewJSON())
		c.send(protocol.Authenticate{UserID: "A"})

		require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := c.conn.ReadMessage()
		assert.Error(t, err)
	})
}

func TestHealthz(t *testing.T) {
	s := startServer(t)
	_ = dial(t, s, codec.NewJSON())

	require.Eventually(t, func() bool { return s.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Address() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","connections":1}`, string(body))
}
