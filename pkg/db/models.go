package db

import "time"

// Preference is a persisted user setting.
type Preference struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// RateSnapshot is a rate table as it was fetched, stored as a JSON object of code -> rate.
type RateSnapshot struct {
	ID        int64
	Base      string
	Rates     map[string]float64
	FetchedAt time.Time
}
