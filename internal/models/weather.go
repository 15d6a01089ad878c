package models

import "time"

// WeatherResult is the JSON body of GET /weather/{city}.
type WeatherResult struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
