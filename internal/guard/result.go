package guard

import "errors"

// Result is the outcome of a guard check.
type Result struct {
	Allowed bool
	Reason  string
	Guard   string
}

// ErrCircuitOpen is returned by CircuitBreaker.Do while the circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit open")
