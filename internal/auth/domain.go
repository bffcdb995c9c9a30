package auth

import "time"

// Admin represents a board administrator account.
type Admin struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the signed-in administrator as seen by the rest of the system.
type Identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Identity projects the account into its public shape.
func (a *Admin) Identity() Identity {
	return Identity{ID: a.ID, DisplayName: a.DisplayName, Email: a.Email}
}
