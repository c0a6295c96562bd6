package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal account record the assistant backend needs; signup and
// credential management live in a separate auth service.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsAgent   bool      `json:"is_agent"`
	CreatedAt time.Time `json:"created_at"`
}
