// Package protocol defines the wire vocabulary of the collaboration channel.
//
// Every websocket message is a Frame: an event name plus an encoded payload.
// Payloads are decoded at the transport boundary into one of the concrete
// Message types below and validated; anything that fails to decode is reported
// as ErrMalformedMessage and never reaches a handler.
//
// Two disjoint vocabularies share the channel. The project vocabulary
// (authenticate, join_project, issue:*, sprint:*, comment:added) keeps the
// shared store in sync. The document vocabulary (join-edit-session,
// cursor-update, typing-*, edit-operation, ...) is scoped by issue id and
// drives a single editing session.
package protocol
