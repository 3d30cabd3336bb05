package model

import "time"

// Template is reusable message content with {{variable}} placeholders.
// Variables is always derived from Content, never hand-edited.
type Template struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Enabled    bool      `json:"enabled"`
	Variables  []string  `json:"variables"`
	UsageCount int       `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
