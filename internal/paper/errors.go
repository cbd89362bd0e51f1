package paper

import (
	"fmt"
	"strings"
)

// MalformedInputError reports solver input that can never be valid:
// a non-positive target, an empty allowed-marks set, or a non-positive
// allowed value.
type MalformedInputError struct {
	Reason string
}

func (e *MalformedInputError) Error() string {
	return "malformed input: " + e.Reason
}

// InfeasibleError reports that no multiset of the allowed marks sums to
// the requested total. The caller can recover by changing either side.
type InfeasibleError struct {
	Target  int
	Allowed []int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no combination of marks %v adds up to %d", e.Allowed, e.Target)
}

// InvariantError reports a defect in witness reconstruction: no candidate
// mark was feasible even though the reachability table proved the target
// reachable. It is never a user-correctable condition.
type InvariantError struct {
	Remaining int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal: no feasible mark at remaining=%d despite reachable target", e.Remaining)
}

// Shortfall records one under-supplied mark value during bank sampling.
type Shortfall struct {
	Marks     int `json:"marks"`
	Required  int `json:"required"`
	Available int `json:"available"`
}

func (s Shortfall) String() string {
	return fmt.Sprintf("need %d for %d marks (found %d)", s.Required, s.Marks, s.Available)
}

// InsufficientPoolError aggregates every shortfall found while sampling a
// distribution from the bank. All deficiencies are collected before the
// error is returned so the teacher sees the full picture at once.
type InsufficientPoolError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientPoolError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return "not enough questions in the bank: " + strings.Join(parts, "; ")
}

// QuotaFallbackError reports a quota-classified generation failure whose
// automatic bank fallback also failed. Both causes are kept so the caller
// can render the quota notice alongside the sampling deficiency.
type QuotaFallbackError struct {
	Quota    error
	Sampling error
}

func (e *QuotaFallbackError) Error() string {
	return fmt.Sprintf("generation quota exceeded (%v); bank fallback failed: %v", e.Quota, e.Sampling)
}

func (e *QuotaFallbackError) Unwrap() error { return e.Sampling }
