package models

import (
	"time"
)

// Record is a shared struct. Upvoters is a JSON array of identities in the
// order the votes arrived; Payload is the compact JSON the owner shared.
type Record struct {
	Owner       string    `json:"owner" gorm:"type:text;primaryKey"`
	LocalID     int64     `json:"localId" gorm:"primaryKey;autoIncrement:false"`
	Upvoters    string    `json:"upvoters" gorm:"type:text;not null;default:'[]'"`
	SubmittedAt int64     `json:"submittedAt" gorm:"not null;index"`
	Payload     string    `json:"payload" gorm:"type:text;not null"`
	CDate       time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
