package models

import "time"

type User struct {
	ID            string    `json:"id" example:"5b0c0d1e-9f0a-4b55-a1de-1a2b3c4d5e6f"` // User ID
	Email         string    `json:"email" example:"user@example.com"`                  // User email
	DisplayName   string    `json:"display_name" example:"Ada"`                        // Name shown in the app
	Role          string    `json:"role" example:"user"`                               // user or admin
	CreditBalance int64     `json:"credit_balance" example:"100"`                      // Remaining credits
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
