// Package models contains the records exchanged over the collaboration
// channel: synchronized entities (issues and sprints) and the ephemeral
// presence records of a document session.
//
// Field names follow the camelCase keys the web client and server use on the
// wire. The same tags are honored by both the JSON and the CBOR codec.
package models
