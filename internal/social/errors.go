package social

import "errors"

var (
	// ErrNotAuthenticated indicates no observing user could be resolved.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidTarget indicates the target user id is missing or malformed.
	ErrInvalidTarget = errors.New("invalid target user")
	// ErrSelfRelation indicates a friend request addressed to oneself.
	ErrSelfRelation = errors.New("cannot befriend yourself")
	// ErrRequestNotFound indicates there is no friend request from the target to accept.
	ErrRequestNotFound = errors.New("friend request not found")
)
