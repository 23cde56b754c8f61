package model

import "time"

// Locker is a logical, numbered compartment registered by an operator.
// The device fields are a snapshot copied at registration time, not a
// live join against the Device detection log.
type Locker struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Number     string    `gorm:"uniqueIndex;size:32;not null" json:"number"`
	DeviceName *string   `gorm:"size:128" json:"deviceName"`
	IPAddress  *string   `gorm:"size:64" json:"ipAddress"`
	Locks      *string   `gorm:"size:64" json:"locks"`
	LEDs       *string   `gorm:"column:leds;size:64" json:"leds"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
