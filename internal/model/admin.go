package model

import "time"

// Admin is an invigilator/operator account with access to the monitor
// views.
type Admin struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
