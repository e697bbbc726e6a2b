package domain

import "time"

// Rider represents a rider able to accept orders of its service type.
type Rider struct {
	ID          string
	Name        string
	Phone       string
	ServiceType ServiceType
	CreatedAt   time.Time
}

// RiderSummary is the denormalized rider display data delivered with the
// one-shot "rider accepted" event.
type RiderSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	ServiceType string `json:"service_type"`
}

// Summary returns the display projection of the rider.
func (r *Rider) Summary() *RiderSummary {
	return &RiderSummary{
		ID:          r.ID,
		Name:        r.Name,
		Phone:       r.Phone,
		ServiceType: string(r.ServiceType),
	}
}
