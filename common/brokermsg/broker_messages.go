package brokermsg

// Topic name constants shared by everything that talks to the check-in exchange.
const (
	TopicTicketValidated = "ticket.validated"
	TopicTicketRejected  = "ticket.rejected"
)

// TicketValidatedMessage is published when a scanned ticket is admitted and
// its attendance was marked by the backend.
type TicketValidatedMessage struct {
	ScanID              string `json:"scan_id"`
	StationID           string `json:"station_id"`
	TicketID            string `json:"ticket_id"`
	TicketNumber        string `json:"ticket_number,omitempty"`
	EventID             string `json:"event_id,omitempty"`
	AttendanceTimestamp int64  `json:"attendance_timestamp"` // Unix timestamp
}

// TicketRejectedMessage is published when a scan ends in a rejection.
type TicketRejectedMessage struct {
	ScanID    string `json:"scan_id"`
	StationID string `json:"station_id"`
	TicketID  string `json:"ticket_id,omitempty"`
	Reason    string `json:"reason"`
	ScannedAt int64  `json:"scanned_at"` // Unix timestamp
}
