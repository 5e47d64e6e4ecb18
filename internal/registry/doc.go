// Package registry binds computed property descriptors to the handlers that
// derive them.
//
// A Registry is built once per session: classes are defined first, raw
// (durable) properties are declared next, and computed properties are
// registered last. After startup the registry is append-only; nothing is
// ever re-registered with different semantics.
//
// Lookups walk the class hierarchy, so a property registered on a base
// class applies to every subclass that does not override it.
package registry
