// Package store persists claim checks, lockers, device detections, the
// admin credential and push subscriptions. This file centralizes the
// store-level error values so handlers can map them to HTTP statuses
// consistently.
package store

import "errors"

var (
	// ErrUnknownLocker is returned when a submission targets a locker
	// number that was never registered.
	ErrUnknownLocker = errors.New("unknown locker number")

	// ErrDuplicateLockerNumber is returned when registering a locker with
	// a number that already exists.
	ErrDuplicateLockerNumber = errors.New("locker number already registered")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAdminExists is returned when bootstrapping an admin credential
	// while one already exists.
	ErrAdminExists = errors.New("admin credential already exists")

	// ErrOTPExpired is returned when an admin change passcode is correct
	// but past its expiry.
	ErrOTPExpired = errors.New("passcode expired")
)
