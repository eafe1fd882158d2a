package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for failures that abort a run before any sandbox
// mutation. They indicate a malformed changeset (or an unreadable source)
// rather than an unsafe one, so they surface as terminal errors instead of
// violations.
var (
	// ErrUnresolvedPlaceholder marks a placeholder referenced as a foreign
	// key but never defined by an insert in the same changeset.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	// ErrInvalidReference marks a placeholder used as the identifier of an
	// update or delete; placeholders are only legal for new records.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrIdentifierCollision marks a generated identifier clashing with an
	// existing row or with another generated identifier.
	ErrIdentifierCollision = errors.New("identifier collision")
	// ErrSnapshotFailed marks a sandbox acquisition that could not capture a
	// single consistent copy of the source schema.
	ErrSnapshotFailed = errors.New("snapshot failed")
)

// ResolutionError wraps one of the resolution sentinels with the offending
// table and reference.
type ResolutionError struct {
	Kind  error
	Table Table
	Ref   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Table, e.Ref, e.Kind)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ResolutionError) Unwrap() error { return e.Kind }

// ApplyCause enumerates the reasons a single apply operation can fail.
type ApplyCause string

const (
	// CauseConstraintViolation covers unknown tables/columns and duplicate
	// primary keys.
	CauseConstraintViolation ApplyCause = "constraint_violation"
	// CauseTypeMismatch marks a value incompatible with its column type.
	CauseTypeMismatch ApplyCause = "type_mismatch"
	// CauseMissingTarget marks an update/delete whose row does not exist.
	CauseMissingTarget ApplyCause = "missing_target"
	// CauseTimeout marks an apply aborted by its deadline.
	CauseTimeout ApplyCause = "timeout"
)

// ApplyError reports the first operation that failed during a transactional
// apply. The whole transaction is rolled back before it is returned.
type ApplyError struct {
	Table Table
	Op    Op
	ID    string
	Cause ApplyCause
	Err   error
}

func (e *ApplyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("apply %s %s %q: %s: %v", e.Op, e.Table, e.ID, e.Cause, e.Err)
	}
	return fmt.Sprintf("apply %s %s %q: %s", e.Op, e.Table, e.ID, e.Cause)
}

// Unwrap exposes the underlying error, when any.
func (e *ApplyError) Unwrap() error { return e.Err }
