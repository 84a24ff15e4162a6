// Package store persists issues in SQLite and pushes a full snapshot to
// subscribers after every committed write.
//
// The database is opened with a single connection in WAL mode. Writes are
// serialized by the Store; each one bumps the snapshot sequence number in
// the same transaction and then publishes through the Hub.
package store
