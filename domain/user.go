package domain

import "time"

// User is owned by the auth service. Immutable after signup.
type User struct {
	ID           UserID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is what a verified session token resolves to.
type Identity struct {
	UserID UserID
	Name   string
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Name: u.Name}
}
