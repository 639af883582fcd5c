package model

import "time"

// Link describes the short-link record persisted by every store backend.
// ShortCode equals CustomAlias whenever an alias was requested.
type Link struct {
	ShortCode      string     `json:"shortCode" db:"short_code" gorm:"primaryKey;size:64"`
	CustomAlias    *string    `json:"customAlias,omitempty" db:"custom_alias" gorm:"size:64;uniqueIndex"`
	LongURL        string     `json:"longUrl" db:"long_url" gorm:"type:text;not null"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at" gorm:"not null"`
	LastAccessed   time.Time  `json:"lastAccessed" db:"last_accessed" gorm:"not null;index"`
	ExpirationDate *time.Time `json:"expirationDate" db:"expiration_date" gorm:"index"`
	ClickCount     int64      `json:"clickCount" db:"click_count" gorm:"not null;default:0"`
}

// IsExpired reports whether the link can no longer be redirected at now.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpirationDate != nil && now.After(*l.ExpirationDate)
}

// Alias returns the custom alias or "" when none was set.
func (l *Link) Alias() string {
	if l.CustomAlias == nil {
		return ""
	}
	return *l.CustomAlias
}
