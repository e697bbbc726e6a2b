package domain

import "time"

// Customer represents a customer who places orders.
type Customer struct {
	ID        string
	Name      string
	Phone     string
	CreatedAt time.Time
}
