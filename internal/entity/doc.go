// Package entity stores the records that live connections subscribe to.
//
// An entity is a JSON object keyed by its "id" field. Every successful
// write is followed by a fan-out of the new state to the entity's
// subscribers. Writes through Apply go through a small reducer:
//
//	set    merges payload keys into the entity
//	unset  removes the keys listed in payload.keys
//
// Any other action type leaves the state unchanged, and the id field can
// never be changed by a write.
package entity
