package model

import "time"

// UserRole separates exam takers from paper authors.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAuthor  UserRole = "author"
)

// User is an authenticated account. Passwords are stored as bcrypt hashes.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}
