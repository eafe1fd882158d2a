package domain

import "fmt"

// Violation reports one constraint or business-rule problem detected during
// validation. Violations are created by checks, carried in the verdict, and
// never persisted.
type Violation struct {
	Severity Severity  `json:"severity"`
	Check    CheckKind `json:"check"`
	Table    Table     `json:"table,omitempty"`
	Op       Op        `json:"op,omitempty"`
	ID       string    `json:"id,omitempty"`
	Message  string    `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s/%s] %s %s %s: %s", v.Severity, v.Check, v.Table, v.Op, v.ID, v.Message)
}

// Result aggregates violations from check evaluation.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasFatal reports whether the result contains a commit-blocking violation.
func (r Result) HasFatal() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Verdict is the final pass/fail outcome of one validation run together with
// the complete violation list. OK is true iff no violation is fatal.
type Verdict struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
}

// Summarize aggregates a violation list into a verdict. It is a pure
// function: reporting never mutates validator state.
func Summarize(violations []Violation) Verdict {
	v := Verdict{OK: true, Violations: violations}
	if v.Violations == nil {
		v.Violations = []Violation{}
	}
	for _, viol := range violations {
		if viol.Severity == SeverityFatal {
			v.OK = false
			break
		}
	}
	return v
}
