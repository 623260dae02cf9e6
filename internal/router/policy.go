package router

import (
	"fmt"
	"strings"
)

// Policy selects how the router treats a record it cannot process.
type Policy int

const (
	// PolicyDrop reports a diagnostic, drops the record and keeps routing.
	PolicyDrop Policy = iota
	// PolicyFail stops the pipeline with an error.
	PolicyFail
)

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyFail:
		return "fail"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy reads "drop" or "fail". An empty string is PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return PolicyDrop, nil
	case "fail":
		return PolicyFail, nil
	}
	return PolicyDrop, fmt.Errorf("router: unknown policy %q", s)
}
