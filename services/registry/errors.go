package registry

import "errors"

var (
	// ErrNotFound is returned when a shutdown targets a group or computer that is not registered.
	ErrNotFound = errors.New("not found")
	// ErrIneligibleState is returned when a computer is not in the online state.
	ErrIneligibleState = errors.New("not in the online state")
	// ErrNoEligibleMembers is returned when no computer of a group is online.
	ErrNoEligibleMembers = errors.New("no computer in this group is online")
	// ErrLockUnavailable is returned when exclusive access to the registry could not be obtained.
	ErrLockUnavailable = errors.New("unable to acquire the registry lock")
)
