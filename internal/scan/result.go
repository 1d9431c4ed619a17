package scan

import (
	"fmt"
	"time"

	"golang.org/x/text/message"

	"tixie.local/checkin/internal/client"
	"tixie.local/checkin/internal/i18n"
)

// State is the validator's position in the scan workflow.
type State int

const (
	StateIdle State = iota
	StateValidating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	default:
		return fmt.Sprintf("unknown state: %d", s)
	}
}

// Status is the terminal outcome of a scan.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonAlreadyUsed     Reason = "already_used"
	ReasonEventEnded      Reason = "event_ended"
	ReasonEventNotStarted Reason = "event_not_started"
	ReasonMutationFailed  Reason = "mutation_failed"
	ReasonInvalidTicket   Reason = "invalid_ticket"
	ReasonInvalidQR       Reason = "invalid_qr"
)

// Result is what one scan ended with.
type Result struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticketId,omitempty"`
	Status    Status         `json:"status"`
	Reason    Reason         `json:"reason,omitempty"`
	StartDate *time.Time     `json:"startDate,omitempty"`
	Ticket    *client.Ticket `json:"ticket,omitempty"`
	ScannedAt time.Time      `json:"scannedAt"`
	// Err is the underlying failure for invalid_ticket, invalid_qr and
	// mutation_failed rejections.
	Err error `json:"-"`
}

// Accepted reports whether the holder was admitted.
func (r Result) Accepted() bool {
	return r.Status == StatusAccepted
}

// Notice renders the message shown to the staff member at the gate.
func (r Result) Notice(p *message.Printer) string {
	if r.Accepted() {
		return p.Sprintf(i18n.MsgAccepted)
	}
	switch r.Reason {
	case ReasonAlreadyUsed:
		return p.Sprintf(i18n.MsgAlreadyUsed)
	case ReasonEventEnded:
		return p.Sprintf(i18n.MsgEventEnded)
	case ReasonEventNotStarted:
		start := ""
		if r.StartDate != nil {
			start = r.StartDate.Format("2006-01-02 15:04 MST")
		}
		return p.Sprintf(i18n.MsgEventNotStarted, start)
	case ReasonMutationFailed:
		return p.Sprintf(i18n.MsgMutationFailed)
	case ReasonInvalidQR:
		return p.Sprintf(i18n.MsgInvalidQR)
	default:
		return p.Sprintf(i18n.MsgInvalidTicket)
	}
}
