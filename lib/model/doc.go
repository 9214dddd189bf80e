// Package model describes the collections of the studio dashboard: their names,
// their tables in the relational service, their field/column schemas and one
// typed partial-update variant per collection.
//
// The record types (Customer, Piece, Event, EventBooking, StudioSettings, Template)
// are declarations: their json tags are the field names of stored records and
// their col tags the matching columns. Schemas is built from them once at start up.
//
// Typed patches make field names of partial updates checked by the compiler:
//
//	err := model.Update(s, "p1", model.PiecePatch{PaidGlaze: model.Ptr(true)})
package model
