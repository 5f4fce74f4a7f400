package model

import "time"

// AdminLoginRequest is the payload for POST /auth/admin/login.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse carries the issued admin JWT.
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
