// Package stack drives a named provisioning stack through its
// asynchronous lifecycle: create, update, delete, and poll-until-terminal.
// The remote service is the source of truth; nothing is cached between
// invocations.
package stack

import "fmt"

// State is the classified lifecycle state of a stack
type State string

const (
	// StateAbsent means the stack does not exist
	StateAbsent State = "absent"
	// StateInProgress means an operation is still running; never a decision point
	StateInProgress State = "in_progress"
	// StateSucceeded means the last operation completed successfully
	StateSucceeded State = "succeeded"
	// StateFailed means the stack is in a failed or rolled-back status
	StateFailed State = "failed"
)

// Terminal reports whether the state allows a lifecycle decision
func (s State) Terminal() bool {
	return s != StateInProgress
}

// Raw provisioning-service statuses, classified.
// https://docs.aws.amazon.com/AWSCloudFormation/latest/UserGuide/using-cfn-describing-stacks.html
var statusStates = map[string]State{
	"CREATE_COMPLETE":          StateSucceeded,
	"UPDATE_COMPLETE":          StateSucceeded,
	"IMPORT_COMPLETE":          StateSucceeded,
	"DELETE_COMPLETE":          StateAbsent,
	"CREATE_FAILED":            StateFailed,
	"DELETE_FAILED":            StateFailed,
	"UPDATE_FAILED":            StateFailed,
	"ROLLBACK_COMPLETE":        StateFailed,
	"ROLLBACK_FAILED":          StateFailed,
	"UPDATE_ROLLBACK_COMPLETE": StateFailed,
	"UPDATE_ROLLBACK_FAILED":   StateFailed,
	"IMPORT_ROLLBACK_COMPLETE": StateFailed,
	"IMPORT_ROLLBACK_FAILED":   StateFailed,
	"CREATE_IN_PROGRESS":                           StateInProgress,
	"DELETE_IN_PROGRESS":                           StateInProgress,
	"UPDATE_IN_PROGRESS":                           StateInProgress,
	"UPDATE_COMPLETE_CLEANUP_IN_PROGRESS":          StateInProgress,
	"UPDATE_ROLLBACK_IN_PROGRESS":                  StateInProgress,
	"UPDATE_ROLLBACK_COMPLETE_CLEANUP_IN_PROGRESS": StateInProgress,
	"ROLLBACK_IN_PROGRESS":                         StateInProgress,
	"IMPORT_IN_PROGRESS":                           StateInProgress,
	"IMPORT_ROLLBACK_IN_PROGRESS":                  StateInProgress,
	"REVIEW_IN_PROGRESS":                           StateInProgress,
}

// StateFromStatus maps a raw provisioning-service status string to a
// State. An unrecognized status is a configuration error, never a
// silent default.
func StateFromStatus(status string) (State, error) {
	if s, ok := statusStates[status]; ok {
		return s, nil
	}
	return "", &UnknownStatusError{Status: status}
}

// UnknownStatusError indicates the provisioning service reported a
// status this tool does not recognize
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unrecognized stack status %q: refusing to guess the lifecycle state", e.Status)
}
