package domain

import "time"

// Project is a named recorded script, the durable unit the store persists.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartURL  string    `json:"start_url"`
	Steps     []*Step   `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
