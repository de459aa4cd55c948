// internal/database/models.go
package database

import "time"

// SaveKey describes one stored value without loading it
type SaveKey struct {
	Key        string    `json:"key"`
	Digest     string    `json:"digest"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	UpdatedAt  time.Time `json:"updated_at"`
}
