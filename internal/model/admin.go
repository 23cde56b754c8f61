package model

import "time"

// AdminCredential is the singleton operator credential row. A credential
// change is staged in the Pending fields together with an OTP and its
// expiry, and committed only after the OTP is verified.
type AdminCredential struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"size:256;not null" json:"email"`
	PIN          string     `gorm:"column:pin;size:32;not null" json:"-"`
	PendingEmail *string    `gorm:"size:256" json:"-"`
	PendingPIN   *string    `gorm:"column:pending_pin;size:32" json:"-"`
	OTP          *string    `gorm:"column:otp;size:6" json:"-"`
	OTPExpires   *time.Time `gorm:"column:otp_expires" json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
