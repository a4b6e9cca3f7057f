package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username          string             `json:"username" bson:"username"`
	PasswordHash      string             `json:"-" bson:"password_hash"`
	Role              string             `json:"role" bson:"role"`
	CreatedAt         time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updated_at"`
	LastLoginAt       *time.Time         `json:"lastLoginAt,omitempty" bson:"last_login_at,omitempty"`
	PasswordChangedAt *time.Time         `json:"passwordChangedAt,omitempty" bson:"password_changed_at,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30,username"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,max=128"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

type SecurityStatus struct {
	Username          string     `json:"username"`
	FailedAttempts    int        `json:"failedAttempts"`
	MaxAttempts       int        `json:"maxAttempts"`
	Locked            bool       `json:"locked"`
	LockRemaining     string     `json:"lockRemaining,omitempty"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty"`
}
