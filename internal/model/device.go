package model

import "time"

// Device is one detection report from a locker controller (ESP).
// Detections are append-only: every report inserts a new row, and the
// current device for a given name is the one with the newest DetectedAt.
type Device struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DeviceName string    `gorm:"size:128;not null;index" json:"deviceName"`
	IPAddress  string    `gorm:"size:64;not null" json:"ipAddress"`
	Locks      *string   `gorm:"size:64" json:"locks"`
	LEDs       *string   `gorm:"column:leds;size:64" json:"leds"`
	DetectedAt time.Time `gorm:"not null;index" json:"detectedAt"`
}
