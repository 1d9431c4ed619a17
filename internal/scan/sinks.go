package scan

import (
	"context"
	"log/slog"

	"golang.org/x/text/message"

	"tixie.local/checkin/common/brokermsg"
	"tixie.local/checkin/internal/db/models"
)

// Sink receives every terminal scan result. Sink errors are logged and never
// change the outcome shown at the gate.
type Sink interface {
	Record(ctx context.Context, r Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Result) error

func (f SinkFunc) Record(ctx context.Context, r Result) error {
	return f(ctx, r)
}

// Journal stores scan records. *repos.ScanRepository implements it.
type Journal interface {
	Record(ctx context.Context, rec models.ScanRecord) error
}

// Publisher sends a message to a routing key. *broker.Broker implements it.
type Publisher interface {
	Publish(ctx context.Context, message any, key string) error
}

// ToRecord flattens a result into a journal row.
func (r Result) ToRecord(stationID string) models.ScanRecord {
	rec := models.ScanRecord{
		ID:        r.ID,
		StationID: stationID,
		TicketID:  r.TicketID,
		Status:    string(r.Status),
		Reason:    string(r.Reason),
		ScannedAt: r.ScannedAt,
	}
	if r.Ticket != nil {
		rec.TicketNumber = r.Ticket.TicketNumber
		if r.Ticket.Event != nil {
			rec.EventID = r.Ticket.Event.ID
		}
	}
	if r.Err != nil {
		rec.Detail = r.Err.Error()
	}
	return rec
}

// JournalSink writes results to the scan journal.
func JournalSink(j Journal, stationID string) Sink {
	return SinkFunc(func(ctx context.Context, r Result) error {
		return j.Record(ctx, r.ToRecord(stationID))
	})
}

// PublisherSink publishes results on the ticket.validated and
// ticket.rejected topics.
func PublisherSink(p Publisher, stationID string) Sink {
	return SinkFunc(func(ctx context.Context, r Result) error {
		if r.Accepted() {
			msg := brokermsg.TicketValidatedMessage{
				ScanID:              r.ID,
				StationID:           stationID,
				TicketID:            r.TicketID,
				AttendanceTimestamp: r.ScannedAt.Unix(),
			}
			if t := r.Ticket; t != nil {
				msg.TicketNumber = t.TicketNumber
				if t.AttendanceTimestamp != nil {
					msg.AttendanceTimestamp = t.AttendanceTimestamp.Unix()
				}
				if t.Event != nil {
					msg.EventID = t.Event.ID
				}
			}
			return p.Publish(ctx, msg, brokermsg.TopicTicketValidated)
		}
		return p.Publish(ctx, brokermsg.TicketRejectedMessage{
			ScanID:    r.ID,
			StationID: stationID,
			TicketID:  r.TicketID,
			Reason:    string(r.Reason),
			ScannedAt: r.ScannedAt.Unix(),
		}, brokermsg.TopicTicketRejected)
	})
}

// LogSink logs each result with its localized notice.
func LogSink(logger *slog.Logger, printer *message.Printer) Sink {
	return SinkFunc(func(_ context.Context, r Result) error {
		attrs := []any{
			"scan_id", r.ID,
			"ticket_id", r.TicketID,
			"status", r.Status,
			"notice", r.Notice(printer),
		}
		if r.Accepted() {
			logger.Info("ticket accepted", attrs...)
			return nil
		}
		attrs = append(attrs, "reason", r.Reason)
		if r.Err != nil {
			attrs = append(attrs, "error", r.Err)
		}
		logger.Warn("ticket rejected", attrs...)
		return nil
	})
}
