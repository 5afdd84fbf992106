package database

import "errors"

// Unit-of-work failures. A commit failure leaves the outcome of the
// transaction unknown to the caller; a rollback failure leaves it unknown too.
var (
	ErrCommit   = errors.New("transaction commit failed")
	ErrRollback = errors.New("transaction rollback failed")
)
