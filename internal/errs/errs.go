// Package errs defines the sentinel error kinds the ingestion pipeline
// distinguishes between when deciding whether to skip an item, abort a
// batch, or retry a transport call.
package errs

import "errors"

// ErrNotFound is returned by an objectstore.Store when a key does not
// exist, distinguishable from a transport error per the object store
// contract.
var ErrNotFound = errors.New("object not found")

// ErrPreconditionViolation is returned when an append is given a new
// date that does not sort after every existing date in the axis.
type ErrPreconditionViolation struct {
	NewDate      string
	MaxExisting  string
}

func (e ErrPreconditionViolation) Error() string {
	return "precondition violation: new date " + e.NewDate +
		" does not sort after existing max date " + e.MaxExisting
}

// ErrChunkStoreFailure marks a failure to read or write a Zarr chunk
// on the backing store. Per spec.md §7 this is IO (batch-fatal): it
// must propagate and abort the batch, since partial chunk persistence
// would violate the DateAxis/chunk-store consistency invariant.
var ErrChunkStoreFailure = errors.New("zarr chunk store failure")

// ErrParse marks a filename that did not match any recognized SNODAS
// or COG naming pattern. Callers treat this as "skip, do not
// propagate".
type ErrParse struct {
	Filename string
	Reason   string
}

func (e ErrParse) Error() string {
	return "parse " + e.Filename + ": " + e.Reason
}

// IsPreconditionViolation reports whether err (or one it wraps) is an
// ErrPreconditionViolation.
func IsPreconditionViolation(err error) bool {
	var pv ErrPreconditionViolation
	return errors.As(err, &pv)
}
