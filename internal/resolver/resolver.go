// Package resolver holds the pure occupancy decision logic for lockers.
// It owns no storage: callers pass in the current set of unclaimed claim
// checks for a locker and get a verdict back. The store runs these
// decisions inside its own transactions.
//
// The default implementation uses the shared-OTP model: one passcode
// unlocks every queued document in a locker, which is only coherent
// because a locker never queues documents for more than one recipient.
// Keeping the policy behind the Resolver interface lets it be swapped for
// a strict one-passcode-per-document model without touching transport or
// storage code.
package resolver

import (
	"errors"

	"locker-kiosk-backend/internal/model"
)

var (
	// ErrLockerOccupied is returned when a locker already holds an
	// unclaimed document for a different recipient.
	ErrLockerOccupied = errors.New("locker is occupied by another recipient")

	// ErrInvalidCredentials is returned for any failed claim attempt.
	// Wrong locker number and wrong passcode produce this same error so
	// callers cannot enumerate occupied lockers.
	ErrInvalidCredentials = errors.New("invalid locker number or passcode")
)

// Decision is the verdict for a submission request.
type Decision struct {
	// SkipActuation is set when the locker is already open and assigned
	// to the same recipient, so no lock pulse or blink sequence should run.
	SkipActuation bool
}

// Resolver decides whether submissions and claims may proceed.
type Resolver interface {
	// CanAccept decides whether a new submission for recipient may enter
	// the locker whose current unclaimed rows are given.
	CanAccept(unclaimed []model.ClaimCheck, recipient string) (Decision, error)

	// Claim decides whether the passcode unlocks the locker and returns
	// the rows to stamp as received.
	Claim(unclaimed []model.ClaimCheck, otp string) ([]model.ClaimCheck, error)
}

// sharedOTP implements the co-mingled claim-check policy described above.
type sharedOTP struct{}

// New returns the default shared-OTP resolver.
func New() Resolver {
	return sharedOTP{}
}

func (sharedOTP) CanAccept(unclaimed []model.ClaimCheck, recipient string) (Decision, error) {
	if len(unclaimed) == 0 {
		return Decision{SkipActuation: false}, nil
	}
	for _, cc := range unclaimed {
		if cc.RecipientEmail != recipient {
			return Decision{}, ErrLockerOccupied
		}
	}
	// Same recipient adding another document: the locker is already
	// physically open and assigned, so no re-actuation.
	return Decision{SkipActuation: true}, nil
}

func (sharedOTP) Claim(unclaimed []model.ClaimCheck, otp string) ([]model.ClaimCheck, error) {
	matched := false
	for _, cc := range unclaimed {
		if cc.OTP == otp {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrInvalidCredentials
	}
	// A single passcode clears the whole occupancy: every unclaimed row
	// is stamped, not just the matching one.
	return unclaimed, nil
}

// SharedOTP returns the passcode that gates the given occupancy, or ""
// when the locker is empty. With the shared-OTP policy all unclaimed rows
// carry the same passcode, so the first row's is authoritative.
func SharedOTP(unclaimed []model.ClaimCheck) string {
	if len(unclaimed) == 0 {
		return ""
	}
	return unclaimed[0].OTP
}
