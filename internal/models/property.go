package models

import "time"

// Property is one purchasable listing. Visits is the remaining number of
// reservation slots; it only changes inside a transaction that also writes or
// reverses a purchase request row.
type Property struct {
	ID              int64     `json:"id"`
	URL             string    `json:"url"`
	Price           float64   `json:"price"`
	Currency        string    `json:"currency"`
	Location        string    `json:"location"`
	Timestamp       string    `json:"timestamp"`
	Visits          int32     `json:"visits"`
	ReservationCost int64     `json:"reservation_cost"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Listing is the payload received on the properties info topic.
type Listing struct {
	URL       string  `json:"url"`
	Timestamp string  `json:"timestamp"`
	Location  string  `json:"location"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}
