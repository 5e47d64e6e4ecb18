// Package engine implements the computed-property cache engine.
//
// The engine sits between the durable repository and its consumers. A
// consumer asks for property P of entity E; the engine resolves the binding
// for (class(E), P) in the registry, serves a populated slot from the value
// store, or invokes the bound handler to compute and populate it.
//
// ARCHITECTURE:
//
// Read path (Get):
//  1. Populated slot and not computeEveryTime: return it.
//  2. Bulk mode on for (tag, class): fill the bulk table once, then serve
//     this entity from it and copy the entry into its slot.
//  3. Otherwise call Handler.Load, check kind and references, populate.
//
// Write path (Set): Handler.Write, then write-through or re-derive, then
// invalidation as if the property were a raw property that changed.
//
// Invalidation (Invalidate): dependency paths are walked backward from the
// changed entity. Clearing is never followed by eager recomputation.
//
// Promotion (RequestPromotion): an ordered resolver chain (listeners, owner
// handler, default owner promoter) produces a durable entity; every cached
// reference is rewritten before the call returns.
//
// CRITICAL PATTERNS:
//
// Single session: one goroutine drives one engine. The engine takes no
// locks and performs no I/O of its own beyond repository calls.
//
// Logical clock: bulk epochs come from Clock.Next(), never wall time.
//
// Deterministic order: bindings are consulted in registration order and
// resolvers in chain order.
package engine
