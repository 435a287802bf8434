package core

import (
	"fmt"
	"strings"
)

// SchemaError is returned when a source file lacks a required column or field.
// No warehouse state is written for the file.
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: missing %s", e.File, strings.Join(e.Missing, ", "))
}

// RecordError is returned when a source value cannot be parsed.
type RecordError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s:%d: invalid %s: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// DuplicatePriceError is returned when a price batch quotes a crop more than once.
// Joining such a batch would multiply harvest rows.
type DuplicatePriceError struct {
	Source   string
	CropCode string
	Count    int
}

func (e *DuplicatePriceError) Error() string {
	return fmt.Sprintf("price batch %s has %d rows for crop %q; expected at most one", e.Source, e.Count, e.CropCode)
}

// UnresolvedKeyError is returned when a dimension cannot be read at all.
// A natural key with no matching row is not an error; see UnresolvedKey.
type UnresolvedKeyError struct {
	Dimension string
	Err       error
}

func (e *UnresolvedKeyError) Error() string {
	return fmt.Sprintf("cannot resolve keys against %s: %v", e.Dimension, e.Err)
}

func (e *UnresolvedKeyError) Unwrap() error { return e.Err }

// UnresolvedKeysError is returned when the fail policy meets unresolved keys.
type UnresolvedKeysError struct {
	Keys []UnresolvedKey
}

func (e *UnresolvedKeysError) Error() string {
	if len(e.Keys) == 0 {
		return "unresolved keys"
	}
	k := e.Keys[0]
	return fmt.Sprintf("%d unresolved keys (first: %s %q for harvest %s)", len(e.Keys), k.Dimension, k.NaturalKey, k.HarvestID)
}

// Load stages reported by LoadFailure.
const (
	LoadStageBegin  = "begin"
	LoadStageLock   = "lock"
	LoadStageDates  = "dates"
	LoadStagePurge  = "purge"
	LoadStageInsert = "insert"
	LoadStageCommit = "commit"
)

// LoadFailure is returned when the purge/insert unit fails against the warehouse.
// When RolledBack is true the partitions still hold their previous rows.
type LoadFailure struct {
	Stage      string
	DateIDs    []int64
	RolledBack bool
	Err        error
}

func (e *LoadFailure) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "not rolled back"
	}
	return fmt.Sprintf("load failed at %s for dates %v (%s): %v", e.Stage, e.DateIDs, state, e.Err)
}

func (e *LoadFailure) Unwrap() error { return e.Err }
