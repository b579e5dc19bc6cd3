/*
Package dbchange holds the closed set of row-level change kinds and the
entity states they are derived from.
*/
package dbchange

import "fmt"

// Type is an enum for the type of change being made. Insert, Update or Delete
type Type int

const (
	// Insert Type
	Insert Type = iota
	// Update Type
	Update
	// Delete Type
	Delete
)

func (t Type) String() string {
	switch t {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// EntityState is the lifecycle state of a tracked entity
type EntityState int

const (
	// Detached entities are not tracked
	Detached EntityState = iota
	// Unchanged entities match the store
	Unchanged
	// Unknown is never a valid input to the save pipeline
	Unknown
	// Modified entities have pending property changes
	Modified
	// Added entities will be inserted
	Added
	// Deleted entities will be deleted
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Unknown:
		return "Unknown"
	case Modified:
		return "Modified"
	case Added:
		return "Added"
	case Deleted:
		return "Deleted"
	}
	return fmt.Sprintf("EntityState(%d)", int(s))
}

// IsDirty reports whether entries in this state take part in a save
func (s EntityState) IsDirty() bool {
	return s == Added || s == Modified || s == Deleted
}

// TypeForState maps a dirty entity state to the change that persists it.
// ok is false for states that never produce a change.
func TypeForState(s EntityState) (t Type, ok bool) {
	switch s {
	case Added:
		return Insert, true
	case Modified:
		return Update, true
	case Deleted:
		return Delete, true
	}
	return 0, false
}
