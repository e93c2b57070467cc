package browser

import "fmt"

// AuthenticationError means a service login could not be confirmed.
// Fatal for the run; the Remediation line is surfaced to the user.
type AuthenticationError struct {
	Service     string
	Reason      string
	Remediation string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Service, e.Reason)
}

// TimeoutError means a bounded wait for a remote UI element or
// navigation expired. Per-step and recoverable, never a process abort.
type TimeoutError struct {
	Step string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out during %s: %v", e.Step, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
