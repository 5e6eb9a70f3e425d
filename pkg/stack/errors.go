package stack

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

// TimeoutError indicates a poll loop reached its deadline before the
// stack settled into a terminal status
type TimeoutError struct {
	StackName  string
	Timeout    time.Duration
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for stack %q to reach a terminal status (last status: %s)",
		e.Timeout, e.StackName, e.LastStatus)
}

// OperationFailedError indicates the stack settled in a failed status
// and the operator declined (or was not offered) recovery
type OperationFailedError struct {
	StackName string
	Status    string
	Reason    string
}

func (e *OperationFailedError) Error() string {
	msg := fmt.Sprintf("stack %q is in failed status %s", e.StackName, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// MissingOutputError indicates the stack template did not produce a
// required output key. This is a broken contract with the template,
// not a retryable condition.
type MissingOutputError struct {
	StackName string
	Key       string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("stack %q is missing required output %q: the template no longer matches this tool", e.StackName, e.Key)
}

// isNotExists reports whether the error is the provisioning service's
// "stack does not exist" signal
func isNotExists(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

// isNoUpdates reports whether the error is the service's native
// "nothing changed" condition, which the controller treats as success
func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed")
}

// isThrottled reports whether the error is a transient rate-limit
// signal safe to retry inside the poll loop
func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException":
		return true
	}
	return false
}
