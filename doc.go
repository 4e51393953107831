// Package collab is the client side of the real-time collaboration channel
// of a project tracker.
//
// # Sync Engine
//
// A [Client] owns one websocket connection per process. Its sync engine
// authenticates the connection, keeps the client subscribed to exactly one
// project room and applies every issue, sprint and comment event the server
// pushes for that room to a local store. Applying an event twice leaves the
// store as applying it once.
//
// The connection reconnects on its own (see
// [github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection/rews]).
// After every reconnect the engine authenticates again and re-joins the room
// it was in, which is required because the server forgets both when the
// socket goes away.
//
// # Document Sessions
//
// [Client.OpenDocument] joins the edit session of one issue over the same
// connection. A session tracks who else is editing, their cursors and typing
// indicators, and passes edit operations, issue updates and conflicts through
// to the editor untouched. Events the local user caused are never reflected
// back into its own session.
//
// # Configuration
//
// [New] takes a [github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/config.Config],
// usually loaded from a YAML file and COLLAB_* environment variables.
package collab
