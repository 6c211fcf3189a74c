package models

import "time"

// Preference is a client-local setting. Value holds JSON.
type Preference struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Preference) TableName() string {
	return "preferences"
}
