// Package model is the interlinear text and lexicon domain served by
// lexcache: its schema (schema.cue, embedded) and the handlers bound to
// each computed property.
//
// Build turns a compiled schema into a registry ready for engine.New:
//
//	schema, _ := model.Schema()
//	reg, _ := model.Build(schema)
//	eng := engine.New(repo, reg)
//
// Handlers are looked up by the name a property declares in its handler
// field; see Catalog.
package model
