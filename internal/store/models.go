package store

import "time"

// Artifact records a model file materialised on local disk.
type Artifact struct {
	Identifier string `gorm:"primaryKey;size:512"`
	Path       string `gorm:"size:1024"`
	SHA256     string `gorm:"size:64;index"`
	Size       int64
	FetchedAt  time.Time
	VerifiedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
