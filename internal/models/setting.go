package models

import "time"

// Setting is one configuration key-value, unique per key and label.
type Setting struct {
	ID          int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Key         string    `gorm:"column:key;uniqueIndex:idx_key_label"`
	Label       string    `gorm:"column:label;uniqueIndex:idx_key_label"`
	Value       string    `gorm:"column:value"`
	ContentType string    `gorm:"column:content_type"`
	ETag        string    `gorm:"column:etag"`
	Locked      bool      `gorm:"column:locked"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string {
	return "settings"
}
