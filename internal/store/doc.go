// Package store provides the keyed record store behind credentials, the
// token signing secret, subscriptions and entity state.
//
// A Store is one logical table: records are opaque byte slices (JSON in
// practice) addressed by a string key. Two implementations exist:
//
//   - SQLiteStore, a namespace inside the kv_records table
//   - MemoryStore, a mutex-guarded map for tests and development
//
// Both also implement ConditionalStore, whose PutIfAbsent lets concurrent
// initialisers agree on a single winner.
package store
