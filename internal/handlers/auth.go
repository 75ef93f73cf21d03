package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/models"
	"github.com/pipetrax/fieldsyncgo/internal/utils"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login authenticates an inspector. Online, credentials are verified against
// the remote system and the profile is cached locally; offline, the cached
// bcrypt hash lets the same inspector back in without a network.
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if loginReq.Email == "" || loginReq.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if r.monitor.IsOnline() {
		r.loginOnline(w, &loginReq)
		return
	}
	r.loginOffline(w, &loginReq)
}

func (r *Router) loginOnline(w http.ResponseWriter, loginReq *LoginRequest) {
	info, err := r.remote.AuthenticateUser(loginReq.Email, loginReq.Password)
	if err != nil {
		// The remote may have dropped since the last health check; fall back
		// to the cached session rather than locking the inspector out
		if r.monitor.CheckNow() {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Printf("📴 Remote login unreachable, falling back to cached session for %s", loginReq.Email)
		r.loginOffline(w, loginReq)
		return
	}

	hash, err := utils.HashPassword(loginReq.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cache session")
		return
	}

	session := &models.CachedSession{
		InspectorID:  info.InspectorID,
		Email:        info.Email,
		DisplayName:  info.DisplayName,
		CompanyID:    info.CompanyID,
		Role:         info.Role,
		PasswordHash: hash,
		RemoteUID:    info.RemoteUID,
		LastLoginAt:  time.Now().UTC(),
	}
	if err := r.sessions.Save(session); err != nil {
		log.Printf("⚠️ Failed to cache session for %s: %v", info.Email, err)
	}

	r.respondWithToken(w, session, "online")
}

func (r *Router) loginOffline(w http.ResponseWriter, loginReq *LoginRequest) {
	session, err := r.sessions.GetByEmail(loginReq.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read cached sessions")
		return
	}
	if session == nil {
		respondError(w, http.StatusUnauthorized, "No cached session for this account; connectivity required for first login")
		return
	}

	if !utils.CheckPasswordHash(loginReq.Password, session.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	session.LastLoginAt = time.Now().UTC()
	if err := r.sessions.Save(session); err != nil {
		log.Printf("⚠️ Failed to update cached session for %s: %v", session.Email, err)
	}

	r.respondWithToken(w, session, "offline")
}

// logout drops the cached sessions. The next login on this device requires
// connectivity again.
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	if err := r.sessions.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear cached sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (r *Router) respondWithToken(w http.ResponseWriter, session *models.CachedSession, mode string) {
	token, err := utils.GenerateToken(session, r.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"mode":  mode,
		"user": map[string]interface{}{
			"inspectorId": session.InspectorID,
			"email":       session.Email,
			"displayName": session.DisplayName,
			"companyId":   session.CompanyID,
			"role":        session.Role,
		},
	})
}
