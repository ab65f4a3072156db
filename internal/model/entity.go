package model

import "time"

// Default lifecycle status for new records.
const DefaultStatus = "ready"

// Base is the shape shared by every entity.
type Base struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Owner           string    `json:"owner"`
	Status          string    `json:"status"`
	RequestedStatus string    `json:"requested_status"`
	Enabled         bool      `json:"enabled"`
	Created         time.Time `json:"created"`
	LastUpdated     time.Time `json:"lastupdated"`
}

// Meta returns the base record. Entities get it by embedding Base.
func (b *Base) Meta() *Base { return b }

// Entity is implemented by every persisted record type.
//
// Kind must not dereference its receiver so it can be called on a nil
// pointer of the concrete type.
type Entity interface {
	Kind() Kind
	Meta() *Base
	Refs() []Ref
}

// Ref declares one foreign key column of an entity.
//
// ID points at the struct field holding the referenced id so the store can
// both read and write it. An empty id is stored as NULL.
type Ref struct {
	Column   string
	Target   Kind
	ID       *string
	Required bool
}

// Field declares an extra scalar column stored outside the attrs document.
// Value is a pointer to the struct field.
type Field struct {
	Column string
	Value  any
}

// Columned is implemented by entities with indexed scalar columns.
type Columned interface {
	Columns() []Field
}

// Validator is implemented by entities with field-level invariants.
type Validator interface {
	Validate() error
}

// RefTo returns the ref of e whose column matches, if any.
func RefTo(e Entity, column string) (Ref, bool) {
	for _, r := range e.Refs() {
		if r.Column == column {
			return r, true
		}
	}
	return Ref{}, false
}
