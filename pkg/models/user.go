package models

import "time"

// User represents a Telegram user practicing with the bot
type User struct {
	ID           int64     `json:"id" db:"id"` // Telegram User ID
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
