package client

import (
	"context"
	"net/http"
)

// ListEvents returns every event visible to the caller.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	var env listEnvelope[Event]
	if err := c.do(ctx, http.MethodGet, "/api/events", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetEvent returns one event with its tickets.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var event Event
	if err := c.do(ctx, http.MethodGet, "/api/events/"+escape(id), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent validates in and asks the backend to create the event.
// Only administrators may do this; the backend enforces it.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var event Event
	if err := c.do(ctx, http.MethodPost, "/api/events", in, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateTicket issues a new ticket for eventID.
func (c *Client) CreateTicket(ctx context.Context, eventID string) (*Ticket, error) {
	if eventID == "" {
		return nil, ErrMissingID
	}
	var ticket Ticket
	if err := c.do(ctx, http.MethodPost, "/api/events/"+escape(eventID)+"/tickets", nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicket looks a ticket up by its event and ticket identifiers.
func (c *Client) GetTicket(ctx context.Context, eventID, ticketID string) (*Ticket, error) {
	if eventID == "" || ticketID == "" {
		return nil, ErrMissingID
	}
	var ticket Ticket
	path := "/api/events/" + escape(eventID) + "/tickets/" + escape(ticketID)
	if err := c.do(ctx, http.MethodGet, path, nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByID looks a ticket up by its global identifier. The response
// includes the owning event.
func (c *Client) GetTicketByID(ctx context.Context, ticketID string) (*Ticket, error) {
	if ticketID == "" {
		return nil, ErrMissingID
	}
	var ticket Ticket
	if err := c.do(ctx, http.MethodGet, "/api/events/tickets/"+escape(ticketID), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkAttendance records that the ticket holder was admitted.
func (c *Client) MarkAttendance(ctx context.Context, ticketID string) (*Ticket, error) {
	if ticketID == "" {
		return nil, ErrMissingID
	}
	var ticket Ticket
	if err := c.do(ctx, http.MethodPut, "/api/events/tickets/"+escape(ticketID)+"/attendance", nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}
