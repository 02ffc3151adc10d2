package models

import "time"

// Book is an uploaded book file. ID is the fileId clients see; StorageKey
// addresses the blob. (UserID, SHA256, Size) is unique.
type Book struct {
	ID         int64
	UserID     string
	SHA256     string
	Size       int64
	FileName   string
	StorageKey string
	CreatedAt  time.Time
}
