package model

import "time"

// PushSubscription holds a browser push subscription for a recipient who
// wants to be told when a document is waiting for them.
type PushSubscription struct {
	Endpoint       string    `gorm:"primaryKey" json:"endpoint"`
	P256DH         string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth           string    `gorm:"not null" json:"auth"`
	RecipientEmail string    `gorm:"size:256;not null;index" json:"recipientEmail"`
	CreatedAt      time.Time `gorm:"not null" json:"createdAt"`
}
