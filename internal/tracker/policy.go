package tracker

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides the duplicate-check verdict when the check
// itself fails.
type DuplicatePolicy int

const (
	// FailOpen reports "not a duplicate" on failure and lets sign-up proceed.
	FailOpen DuplicatePolicy = iota
	// FailClosed reports "duplicate" on failure.
	FailClosed
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail_open", "open":
		return FailOpen, nil
	case "fail_closed", "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown duplicate check policy %q", s)
	}
}

func (p DuplicatePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// VerdictOnError is the verdict returned when the check cannot complete.
func (p DuplicatePolicy) VerdictOnError() bool {
	return p == FailClosed
}
