package models

import "time"

// Product maps an external offer id to the account (category) it belongs
// to. Reference data managed through the products API; the reconciliation
// engine only reads it to derive a lead's category.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	OfferID     string    `json:"offer_id"`
	AccountName string    `json:"account_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
