package enrollment

import (
	"errors"
	"fmt"

	"github.com/campusorch/enrollcore/pkg/policy"
)

// ErrNotFound indicates a missing student, section, or course.
var ErrNotFound = errors.New("enrollment: not found")

// ErrAlreadyEnrolled indicates an active (student, section) pair already exists.
var ErrAlreadyEnrolled = errors.New("enrollment: student already has an active enrollment in this section")

// ErrSectionFull indicates capacity and waitlist are both exhausted.
var ErrSectionFull = errors.New("enrollment: section and its waitlist are both full")

// ErrLockTimeout indicates a lease could not be acquired within wait_timeout.
var ErrLockTimeout = errors.New("enrollment: timed out acquiring section lock")

// ErrAuditFailure indicates the audit chain write failed; fatal for the
// enclosing operation, which must not be acknowledged to its caller.
var ErrAuditFailure = errors.New("enrollment: audit chain write failed")

// PolicyDeniedError wraps a policy.Result denial as a terminal error.
type PolicyDeniedError struct {
	Reason        string
	ViolatedRules []string
	Metadata      map[string]any
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("enrollment: policy denied: %s (%v)", e.Reason, e.ViolatedRules)
}

// NewPolicyDeniedError builds a PolicyDeniedError from a denying policy.Result.
func NewPolicyDeniedError(r policy.Result) *PolicyDeniedError {
	return &PolicyDeniedError{Reason: r.Reason, ViolatedRules: r.ViolatedRules, Metadata: r.Metadata}
}

// ConcurrencyConflictError surfaces an event-store version fence failure
// that exhausted its retry budget.
type ConcurrencyConflictError struct {
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("enrollment: version conflict after retries: expected %d, actual %d", e.Expected, e.Actual)
}
