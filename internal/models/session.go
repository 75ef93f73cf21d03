package models

import "time"

// CachedSession is the locally cached inspector profile. It lets the app
// authenticate the same inspector while offline: the bcrypt hash is checked
// locally and a fresh token is issued without touching the remote system.
type CachedSession struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	InspectorID  string `gorm:"type:varchar(255);not null;uniqueIndex" json:"inspectorId"`
	Email        string `gorm:"type:varchar(255);not null;index" json:"email"`
	DisplayName  string `gorm:"type:varchar(255)" json:"displayName"`
	CompanyID    string `gorm:"type:varchar(255)" json:"companyId"`
	Role         string `gorm:"type:varchar(50)" json:"role"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	RemoteUID    int64  `json:"remoteUid"`

	LastLoginAt time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (CachedSession) TableName() string {
	return "cached_sessions"
}
