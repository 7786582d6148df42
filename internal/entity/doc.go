// Package entity implements self-describing domain objects.
//
// An entity class is declared once as a *Class holding an ordered registry of
// field descriptors. Each descriptor (a *Field[T]) owns one attribute: its
// default, whether it is required, its value transform and validator, and
// the policies deciding who may see and who may write it. Instances embed
// Base, which stores the current values and an append-only log of set
// events.
//
// Writes always name their author: a ContextualValue pairs the acting
// principal with the value, and the descriptor's mutation policy decides
// whether the write is allowed. Reads for the outside world go through View,
// which drops fields the viewer may not see.
//
// Entities created with Create or loaded with Hydrate register themselves
// with the Tracker found in the context, which is how the session's identity
// map learns about them without a global registry.
package entity
