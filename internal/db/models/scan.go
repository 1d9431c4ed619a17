package models

import "time"

// ScanRecord is one terminal scan outcome. Reason is empty for accepted scans
// and Detail carries the underlying error text, if any.
type ScanRecord struct {
	ID           string    `db:"id" json:"id"`
	StationID    string    `db:"station_id" json:"stationId"`
	TicketID     string    `db:"ticket_id" json:"ticketId,omitempty"`
	TicketNumber string    `db:"ticket_number" json:"ticketNumber,omitempty"`
	EventID      string    `db:"event_id" json:"eventId,omitempty"`
	Status       string    `db:"status" json:"status"`
	Reason       string    `db:"reason" json:"reason,omitempty"`
	Detail       string    `db:"detail" json:"detail,omitempty"`
	ScannedAt    time.Time `db:"scanned_at" json:"scannedAt"`
}

// StatusCount is one row of the per-status tally.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}
