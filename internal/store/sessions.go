package store

import (
	"errors"

	"github.com/pipetrax/fieldsyncgo/internal/database"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/gorm"
)

// SessionStore is the cached-session collection, used for offline login
type SessionStore struct {
	db *database.DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *database.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save upserts the cached session for an inspector
func (s *SessionStore) Save(session *models.CachedSession) error {
	var existing models.CachedSession
	return s.db.Where("inspector_id = ?", session.InspectorID).
		Assign(models.CachedSession{
			Email:        session.Email,
			DisplayName:  session.DisplayName,
			CompanyID:    session.CompanyID,
			Role:         session.Role,
			PasswordHash: session.PasswordHash,
			RemoteUID:    session.RemoteUID,
			LastLoginAt:  session.LastLoginAt,
		}).
		FirstOrCreate(&existing).Error
}

// GetByEmail looks up a cached session by the inspector's email
func (s *SessionStore) GetByEmail(email string) (*models.CachedSession, error) {
	var session models.CachedSession
	err := s.db.Where("email = ?", email).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Clear drops all cached sessions (explicit logout)
func (s *SessionStore) Clear() error {
	return s.db.Exec("DELETE FROM cached_sessions").Error
}
