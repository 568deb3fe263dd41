package main

import "errors"

// Failures that reach the offending client as an "error" message. Everything
// else in the protocol (missing rooms, missing players, missing media)
// degrades to a silent no-op.
var (
	ErrInvalidIdentity  = errors.New("invalid pseudo")
	ErrIdentityConflict = errors.New("pseudo already taken in this room")
	ErrCannotStart      = errors.New("unable to start the round")
	ErrEmptyQueue       = errors.New("not enough media left to continue")
)
