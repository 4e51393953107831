// Package fakeserver provides a fake collaboration server for tests.
// It speaks the project room and document session protocols over WebSocket
// in either codec and includes a few failure injection capabilities.
//
// The WebSocket side is implemented with the `gws` library and the HTTP
// routes with gorilla/mux.
package fakeserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/lxzan/gws"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/protocol"
)

// FailureType represents the type of failure to inject when an event arrives.
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureIgnore drops the message without handling or replying
	FailureIgnore FailureType = "ignore"
	// FailureDropConnection immediately closes the underlying network connection
	FailureDropConnection FailureType = "drop_connection"
	// FailureInvalidResponse replies with a frame the client cannot decode
	FailureInvalidResponse FailureType = "invalid_response"
)

// Received is an inbound message with the user that sent it.
type Received struct {
	UserID  string
	Message protocol.Message
}

type client struct {
	socket *gws.Conn
	codec  codec.Codec
	opcode gws.Opcode

	// Guarded by Server.mu.
	userID string
	rooms  map[string]struct{}
	docs   map[string]models.Participant
}

// Server is a fake collaboration server.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	router   *mux.Router
	upgrader *gws.Upgrader

	// EchoToSender makes relayed document events go back to their sender
	// too, like a server that does not filter its broadcasts.
	EchoToSender bool

	mu       sync.RWMutex
	clients  map[*gws.Conn]*client
	received []Received
	failures map[protocol.Event]FailureType
}

// Handler implements the gws.Event interface for WebSocket connections.
type Handler struct {
	gws.BuiltinEventHandler
	server *Server
}

// NewServer creates a new fake server.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	s := &Server{
		addr:     addr,
		clients:  make(map[*gws.Conn]*client),
		failures: make(map[protocol.Event]FailureType),
	}

	s.upgrader = gws.NewUpgrader(&Handler{server: s}, &gws.ServerOption{
		SubProtocols: []string{codec.NameJSON, codec.NameCBOR},
	})

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)

	return s
}

// Start starts the server and begins accepting WebSocket connections.
// Returns an error if the server cannot bind to the specified address.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	s.DropConnections()
	if s.http != nil {
		return s.http.Close()
	}
	return nil
}

// Address returns the actual address the server is listening on.
// This is useful when using "127.0.0.1:0" to get the assigned port.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the websocket endpoint.
func (s *Server) URL() string {
	return "ws://" + s.Address() + "/ws"
}

// FailOn injects a failure whenever event is received.
// FailureNone removes it.
func (s *Server) FailOn(event protocol.Event, f FailureType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f == FailureNone {
		delete(s.failures, event)
		return
	}
	s.failures[event] = f
}

// Broadcast sends msg to every connection in the project's room.
func (s *Server) Broadcast(projectID string, msg protocol.Message) error {
	s.mu.RLock()
	targets := make([]*client, 0)
	for _, c := range s.clients {
		if _, ok := c.rooms[projectID]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	return s.sendAll(targets, msg)
}

// SendTo sends msg to every connection authenticated as userID.
func (s *Server) SendTo(userID string, msg protocol.Message) error {
	return s.sendAll(s.clientsOf(userID), msg)
}

// SendRaw writes data as-is to every connection authenticated as userID.
func (s *Server) SendRaw(userID string, data []byte) error {
	for _, c := range s.clientsOf(userID) {
		if err := c.socket.WriteMessage(c.opcode, data); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every connection without a close frame, as a
// network failure would.
func (s *Server) DropConnections() {
	s.mu.RLock()
	sockets := make([]*gws.Conn, 0, len(s.clients))
	for socket := range s.clients {
		sockets = append(sockets, socket)
	}
	s.mu.RUnlock()

	for _, socket := range sockets {
		_ = socket.NetConn().Close()
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// Received returns, in arrival order, the messages sent by userID.
func (s *Server) Received(userID string) []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []protocol.Message
	for _, r := range s.received {
		if r.UserID == userID {
			out = append(out, r.Message)
		}
	}
	return out
}

// RoomMembers returns the users whose connections are in the project's room.
func (s *Server) RoomMembers(projectID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, c := range s.clients {
		if _, ok := c.rooms[projectID]; ok {
			out = append(out, c.userID)
		}
	}
	return out
}

// DocumentMembers returns the users in the issue's edit session.
func (s *Server) DocumentMembers(issueID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, c := range s.clients {
		if p, ok := c.docs[issueID]; ok {
			out = append(out, p.UserID)
		}
	}
	return out
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")[0])
	c, err := codec.ByName(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		log.Printf("Upgrade error: %v", err)
		return
	}

	opcode := gws.OpcodeText
	if c.Binary() {
		opcode = gws.OpcodeBinary
	}

	s.mu.Lock()
	s.clients[socket] = &client{
		socket: socket,
		codec:  c,
		opcode: opcode,
		rooms:  make(map[string]struct{}),
		docs:   make(map[string]models.Participant),
	}
	s.mu.Unlock()

	go socket.ReadLoop()
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	body, err := codec.NewJSON().Marshal(map[string]any{
		"status":      "ok",
		"connections": s.Connections(),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) clientsOf(userID string) []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*client
	for _, c := range s.clients {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) send(c *client, msg protocol.Message) error {
	data, err := protocol.Encode(c.codec, msg)
	if err != nil {
		return err
	}
	return c.socket.WriteMessage(c.opcode, data)
}

func (s *Server) sendAll(targets []*client, msg protocol.Message) error {
	var errs []error
	for _, c := range targets {
		if err := s.send(c, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) OnClose(socket *gws.Conn, _ error) {
	s := h.server

	s.mu.Lock()
	c, ok := s.clients[socket]
	delete(s.clients, socket)
	s.mu.Unlock()

	if !ok {
		return
	}
	// Peers see an unclean disconnect as leaving every document.
	for issueID := range c.docs {
		h.leaveDocument(c, issueID)
	}
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("Error writing Pong: %v", err)
	}
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	s := h.server

	s.mu.RLock()
	c, ok := s.clients[socket]
	s.mu.RUnlock()
	if !ok {
		return
	}

	msg, err := protocol.Decode(c.codec, message.Bytes())
	if err != nil {
		log.Printf("Dropping client frame: %v", err)
		return
	}

	s.mu.Lock()
	userID := c.userID
	switch m := msg.(type) {
	case protocol.Authenticate:
		userID = m.UserID
	case protocol.Sender:
		// Document sessions may share a socket that never authenticated.
		if userID == "" {
			userID = m.SenderID()
		}
	}
	s.received = append(s.received, Received{UserID: userID, Message: msg})
	failure := s.failures[msg.Event()]
	s.mu.Unlock()

	switch failure {
	case FailureIgnore:
		return
	case FailureDropConnection:
		_ = socket.NetConn().Close()
		return
	case FailureInvalidResponse:
		_ = socket.WriteMessage(c.opcode, []byte("not a frame"))
		return
	}

	h.handle(c, msg)
}

func (h *Handler) handle(c *client, msg protocol.Message) {
	s := h.server

	switch m := msg.(type) {
	case protocol.Authenticate:
		s.mu.Lock()
		c.userID = m.UserID
		s.mu.Unlock()
		h.reply(c, protocol.Authenticated{UserID: m.UserID})

	case protocol.JoinProject:
		s.mu.Lock()
		c.rooms[m.ProjectID] = struct{}{}
		s.mu.Unlock()

	case protocol.LeaveProject:
		s.mu.Lock()
		delete(c.rooms, m.ProjectID)
		s.mu.Unlock()

	case protocol.JoinEditSession:
		h.joinDocument(c, m)

	case protocol.LeaveEditSession:
		h.leaveDocument(c, m.IssueID)

	case protocol.Scoped:
		// Cursors, typing and edit operations are relayed to the session.
		h.relay(c, m.DocumentID(), msg)

	default:
		log.Printf("Unexpected client event %s", msg.Event())
	}
}

func (h *Handler) reply(c *client, msg protocol.Message) {
	if err := h.server.send(c, msg); err != nil {
		log.Printf("Error replying %s: %v", msg.Event(), err)
	}
}

func (h *Handler) joinDocument(c *client, m protocol.JoinEditSession) {
	s := h.server
	p := models.Participant{
		UserID:     m.UserID,
		UserName:   m.UserName,
		UserAvatar: m.UserAvatar,
		JoinedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	c.docs[m.IssueID] = p
	roster := make([]models.Participant, 0)
	for _, other := range s.clients {
		if member, ok := other.docs[m.IssueID]; ok {
			roster = append(roster, member)
		}
	}
	s.mu.Unlock()

	h.reply(c, protocol.ActiveUsers{IssueID: m.IssueID, Users: roster})
	h.relay(c, m.IssueID, protocol.UserJoined{IssueID: m.IssueID, Participant: p})
}

func (h *Handler) leaveDocument(c *client, issueID string) {
	s := h.server

	s.mu.Lock()
	p, ok := c.docs[issueID]
	delete(c.docs, issueID)
	s.mu.Unlock()

	if ok {
		h.relay(c, issueID, protocol.UserLeft{IssueID: issueID, UserID: p.UserID, UserName: p.UserName})
	}
}

// relay sends msg to the other members of the document session, and to
// the sender when EchoToSender is set.
func (h *Handler) relay(from *client, issueID string, msg protocol.Message) {
	s := h.server

	s.mu.RLock()
	targets := make([]*client, 0)
	for _, c := range s.clients {
		if c == from && !s.EchoToSender {
			continue
		}
		if _, ok := c.docs[issueID]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	if err := s.sendAll(targets, msg); err != nil {
		log.Printf("Error relaying %s: %v", msg.Event(), fmt.Errorf("document %s: %w", issueID, err))
	}
}
