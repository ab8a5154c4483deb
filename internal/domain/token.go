package domain

import "time"

// Token is one issued access token. A login session is the set of rows
// sharing one RefreshToken: refresh inserts a new row with the same
// refresh token and session expiry instead of mutating the old one.
type Token struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index;not null" json:"user_id"`
	AccessToken      string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	RefreshToken     string    `gorm:"size:64;index;not null" json:"-"`
	DeviceType       string    `gorm:"size:16" json:"device_type"`
	DeviceID         string    `gorm:"size:64" json:"device_id"`
	IPAddress        string    `gorm:"size:64" json:"ip_address"`
	AccessExpiresAt  time.Time `gorm:"index;not null" json:"access_expires_at"`
	RefreshExpiresAt time.Time `gorm:"index;not null" json:"refresh_expires_at"`
	IsRevoked        bool      `gorm:"index;not null;default:false" json:"is_revoked"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Usable reports whether the row can still serve as a bearer credential.
func (t *Token) Usable(now time.Time) bool {
	return !t.IsRevoked && now.Before(t.AccessExpiresAt)
}

// SessionExpired reports whether the whole session (refresh window) is over.
func (t *Token) SessionExpired(now time.Time) bool {
	return !t.RefreshExpiresAt.After(now)
}
