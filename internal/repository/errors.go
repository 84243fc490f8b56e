package repository

import "errors"

var (
	// ErrDuplicateSubmission is returned when the (homework, child) unique key rejects an insert.
	ErrDuplicateSubmission = errors.New("submission already exists for homework and child")
	// ErrLockHeld is returned when another request holds the submission lock.
	ErrLockHeld = errors.New("submission lock held")
)
