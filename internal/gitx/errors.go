package gitx

import "fmt"

// ErrorKind classifies a git failure for propagation policy decisions.
type ErrorKind int

const (
	// KindGeneric covers working-tree and commit faults.
	KindGeneric ErrorKind = iota
	// KindAuth means credentials are missing or rejected.
	KindAuth
	// KindNetwork means the remote is unreachable.
	KindNetwork
	// KindConflict means the remote diverged and a fast-forward is impossible.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindConflict:
		return "conflict"
	default:
		return "git"
	}
}

// GitError wraps a failed git invocation with its captured output.
type GitError struct {
	Op     string
	Kind   ErrorKind
	Output string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed (%s): %s", e.Op, e.Kind, e.Output)
}

func (e *GitError) Unwrap() error { return e.Err }
