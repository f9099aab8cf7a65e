package domain

import "time"

// StatusCheck is a client ping recorded by the status endpoints.
type StatusCheck struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	Timestamp  time.Time `json:"timestamp"`
}
