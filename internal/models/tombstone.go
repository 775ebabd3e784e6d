// Package models contains data structures for the application's domain models.
package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrTombstoneInvariant is returned by the save hook when a row's deleted flag
// and deleted_at timestamp disagree.
var ErrTombstoneInvariant = errors.New("tombstone invariant violated: deleted and deleted_at disagree")

// Tombstone is the lifecycle state of a soft-deletable row: either Active or
// Deleted at a point in time. The zero value is Active.
type Tombstone struct {
	at *time.Time
}

// ActiveState returns the Active variant.
func ActiveState() Tombstone {
	return Tombstone{}
}

// DeletedState returns the Deleted variant stamped with at.
func DeletedState(at time.Time) Tombstone {
	stamp := at
	return Tombstone{at: &stamp}
}

// IsDeleted reports whether the state is the Deleted variant.
func (t Tombstone) IsDeleted() bool {
	return t.at != nil
}

// DeletedAt returns the deletion time and true for the Deleted variant.
func (t Tombstone) DeletedAt() (time.Time, bool) {
	if t.at == nil {
		return time.Time{}, false
	}
	return *t.at, true
}

// SoftDelete holds the persisted columns of a Tombstone. The fields are
// exported for GORM only; application code goes through State and SetState.
type SoftDelete struct {
	Deleted   bool       `gorm:"not null;default:false;index" json:"deleted"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// State decodes the persisted columns into a Tombstone.
func (s SoftDelete) State() Tombstone {
	if !s.Deleted || s.DeletedAt == nil {
		return ActiveState()
	}
	return DeletedState(*s.DeletedAt)
}

// SetState writes both columns from t.
func (s *SoftDelete) SetState(t Tombstone) {
	if at, ok := t.DeletedAt(); ok {
		s.Deleted = true
		s.DeletedAt = &at
		return
	}
	s.Deleted = false
	s.DeletedAt = nil
}

// IsDeleted reports whether the row is tombstoned.
func (s SoftDelete) IsDeleted() bool {
	return s.State().IsDeleted()
}

// BeforeSave rejects rows whose columns were mutated out of step.
func (s *SoftDelete) BeforeSave(_ *gorm.DB) error {
	if s.Deleted != (s.DeletedAt != nil) {
		return ErrTombstoneInvariant
	}
	return nil
}
