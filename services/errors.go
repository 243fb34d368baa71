// Package services holds the check-in core: the scheduler that sends daily prompts, the
// collector that records answers and the escalation runner that alerts contacts.
package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyCheckedIn  = errors.New("a check-in already exists for today")
	ErrNoPhone           = errors.New("monitored person has no phone number")
	ErrInvalidChannel    = errors.New("channel must be sms, voice or both")
	ErrMessagingDisabled = errors.New("messaging disabled for this person")
	ErrTickInProgress    = errors.New("tick already in progress")
)
