// Package placeholder tracks provisional entities and drives their
// promotion to durable ones.
//
// A placeholder gets an id from a monotonic counter that never repeats,
// even after the placeholder is promoted or discarded. Its state only
// moves forward: Provisional, then PromotionRequested once a resolver
// claims a promotion request, then Real once the durable entity exists
// and every reference has been rewritten.
//
// Promotion runs an ordered resolver chain supplied by the caller. The
// first resolver that handles the request wins; there is no event
// subscription and no hidden control flow.
package placeholder
