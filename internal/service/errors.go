package service

import "errors"

var (
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidRule   = errors.New("invalid recurrence rule")
	ErrInvalidSnooze = errors.New("snooze duration must be positive")
)
