// Package cache holds materialized computed-property values.
//
// The Store is the single place consumers read computed values from, but it
// is never their source of truth: handlers are. A slot is populated iff it
// is present; clearing removes it rather than marking it stale.
//
// Bulk tables hold the output of one bulk pass per (tag, class). Entries
// are copied into slots lazily as entities are requested, so a bulk pass
// over a large class does not fan out into the slot table.
//
// Store is not safe for concurrent use. One session owns one Store.
package cache
