package model

import "time"

// ClaimCheck is one submission attempt: a document dropped into a locker
// for a recipient, gated by a 6-digit OTP. DateReceived is nil while the
// document is still waiting; it is stamped exactly once on retrieval.
//
// Occupancy invariant: all unclaimed rows for a locker number share the
// same recipient email.
type ClaimCheck struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	SenderEmail    string     `gorm:"size:256;not null" json:"senderEmail"`
	RecipientEmail string     `gorm:"size:256;not null" json:"recipientEmail"`
	Note           string     `gorm:"type:text" json:"note"`
	LockerNumber   string     `gorm:"size:32;not null;index" json:"lockerNumber"`
	DocumentType   string     `gorm:"size:64" json:"documentType"`
	OTP            string     `gorm:"column:otp;size:6;not null" json:"-"`
	CreatedAt      time.Time  `gorm:"not null" json:"createdAt"`
	DateReceived   *time.Time `json:"dateReceived"`
}

// Unclaimed reports whether the document is still waiting in the locker.
func (c ClaimCheck) Unclaimed() bool {
	return c.DateReceived == nil
}
