package models

import "time"

// User is an account. Verifier is the argon2 key derived from the password
// and Salt; Seq is the last row sequence number handed out to the user.
type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	Seq       int64
	CreatedAt time.Time
}
