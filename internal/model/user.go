// Package model defines the data structures used throughout the application.
package model

// User is a person known to the system.
//
// The ID is the identity provider's subject (e.g. "auth0|64f1..."), not a
// value we generate. Users are created the first time an authenticated
// request reaches a mutating endpoint, so a User row always mirrors the
// identity that created it.
//
// Email is unique across users when non-empty.
type User struct {
	ID                string `json:"id"                db:"id"`
	Name              string `json:"name"              db:"name"`
	Email             string `json:"email"             db:"email"`
	ProfilePictureURL string `json:"profilePictureUrl" db:"profile_picture_url"`
}
