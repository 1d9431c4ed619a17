package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/text/message"

	"tixie.local/checkin/config"
	"tixie.local/checkin/internal/client"
	"tixie.local/checkin/internal/clock"
	"tixie.local/checkin/internal/i18n"
	"tixie.local/checkin/internal/scan"
	"tixie.local/checkin/internal/session"
)

const dateLayout = "2006-01-02 15:04"

var (
	errNotLoggedIn = errors.New("not logged in, run `ticketctl login`")
	errRejected    = errors.New("ticket rejected")
)

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type app struct {
	session *session.Session
	client  *client.Client
	printer *message.Printer
	logger  *slog.Logger
	out     io.Writer
}

func newApp(cfg config.Config, out io.Writer, logger *slog.Logger) (*app, error) {
	sess := session.New(session.NewFileStore(cfg.TokenFile), session.WithLogger(logger))
	if err := sess.Hydrate(); err != nil {
		logger.Warn("discarded unreadable session token", "error", err)
	}
	return &app{
		session: sess,
		client: client.New(cfg.APIURL,
			client.WithCredentials(sess),
			client.WithLocale(cfg.Locale),
			client.WithTimeout(cfg.HTTPTimeout),
			client.WithLogger(logger),
		),
		printer: i18n.NewPrinter(i18n.Match(cfg.Locale)),
		logger:  logger,
		out:     out,
	}, nil
}

type command struct {
	summary      string
	usage        string
	needsBackend bool
	run          func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error
}

var commandOrder = []string{
	"login", "register", "logout", "whoami",
	"events", "event", "create-event", "issue-ticket", "ticket", "scan",
}

var commands = map[string]command{
	"login":        {"sign in and store the session token", "--email EMAIL --password PASSWORD", true, cmdLogin},
	"register":     {"create an account and sign in", "--email EMAIL --password PASSWORD [--name NAME]", true, cmdRegister},
	"logout":       {"forget the stored session token", "", false, cmdLogout},
	"whoami":       {"show the signed-in user", "", false, cmdWhoami},
	"events":       {"list events", "", true, cmdEvents},
	"event":        {"show an event and its tickets", "<eventId>", true, cmdEvent},
	"create-event": {"create an event (administrators only)", "--title TITLE --start TIME --end TIME [--days N] [--address ADDR] [--maps-url URL]", true, cmdCreateEvent},
	"issue-ticket": {"issue a ticket for an event", "<eventId>", true, cmdIssueTicket},
	"ticket":       {"show a ticket", "<ticketId> [--event eventId]", true, cmdTicket},
	"scan":         {"validate a QR payload and mark attendance", "<payload>", true, cmdScan},
}

func parseArgs(fs *pflag.FlagSet, args []string, positional int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, usageError{err.Error()}
	}
	if fs.NArg() != positional {
		return nil, usageError{fmt.Sprintf("expected %d argument(s), got %d", positional, fs.NArg())}
	}
	return fs.Args(), nil
}

func cmdLogin(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return usageError{"email and password are required"}
	}

	resp, err := a.client.Login(ctx, client.LoginCredentials{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	return a.storeToken(resp.AccessToken)
}

func cmdRegister(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return usageError{"email and password are required"}
	}

	resp, err := a.client.Register(ctx, client.RegisterCredentials{Email: *email, Password: *password, Name: *name})
	if err != nil {
		return err
	}
	return a.storeToken(resp.AccessToken)
}

func (a *app) storeToken(token string) error {
	if err := a.session.Login(token); err != nil {
		return err
	}
	u, _ := a.session.User()
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", u.Email, u.Role)
	return nil
}

func cmdLogout(_ context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	u, ok := a.session.User()
	if !ok {
		return errNotLoggedIn
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	if u.Name != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", u.Name)
	}
	fmt.Fprintf(tw, "Subject:\t%s\n", u.Subject)
	fmt.Fprintf(tw, "Role:\t%s\n", u.Role)
	fmt.Fprintf(tw, "Admin:\t%t\n", u.IsAdmin())
	return tw.Flush()
}

func cmdEvents(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	events, err := a.client.ListEvents(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No events")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTART\tEND\tDAYS")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.ID, e.Title, e.StartDate.Format(dateLayout), e.EndDate.Format(dateLayout), e.NumberOfDays)
	}
	return tw.Flush()
}

func cmdEvent(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	e, err := a.client.GetEvent(ctx, pos[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", e.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", e.Title)
	if e.Address != "" {
		fmt.Fprintf(tw, "Address:\t%s\n", e.Address)
	}
	if e.GoogleMapsURL != "" {
		fmt.Fprintf(tw, "Map:\t%s\n", e.GoogleMapsURL)
	}
	fmt.Fprintf(tw, "Starts:\t%s\n", e.StartDate.Format(dateLayout))
	fmt.Fprintf(tw, "Ends:\t%s\n", e.EndDate.Format(dateLayout))
	if e.ShortURL != "" {
		fmt.Fprintf(tw, "Link:\t%s\n", e.ShortURL)
	}
	fmt.Fprintf(tw, "Tickets:\t%d\n", len(e.Tickets))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(e.Tickets) == 0 {
		return nil
	}

	fmt.Fprintln(a.out)
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tID\tATTENDED\tAT")
	for _, t := range e.Tickets {
		at := "-"
		if t.AttendanceTimestamp != nil {
			at = t.AttendanceTimestamp.Format(dateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", t.TicketNumber, t.ID, t.Attended, at)
	}
	return tw.Flush()
}

func cmdCreateEvent(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	var in client.EventInput
	fs.StringVar(&in.Title, "title", "", "event title")
	fs.StringVar(&in.Address, "address", "", "venue address")
	fs.StringVar(&in.GoogleMapsURL, "maps-url", "", "Google Maps link for the venue")
	fs.IntVar(&in.NumberOfDays, "days", 0, "number of event days (derived from the dates when 0)")
	start := fs.String("start", "", "start time, RFC 3339")
	end := fs.String("end", "", "end time, RFC 3339")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	if !a.session.IsAuthenticated() {
		return errNotLoggedIn
	}
	// The backend enforces this too; the check only saves a round trip.
	if !a.session.IsAdmin() {
		return errors.New(a.printer.Sprintf(i18n.MsgAdminRequired))
	}

	var err error
	if in.StartDate, err = time.Parse(time.RFC3339, *start); err != nil {
		return usageError{fmt.Sprintf("invalid --start: %v", err)}
	}
	if in.EndDate, err = time.Parse(time.RFC3339, *end); err != nil {
		return usageError{fmt.Sprintf("invalid --end: %v", err)}
	}

	e, err := a.client.CreateEvent(ctx, in)
	if errors.Is(err, client.ErrInvalidEventWindow) {
		return errors.New(a.printer.Sprintf(i18n.MsgEventWindow))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created event %s (%s)\n", e.ID, e.Title)
	return nil
}

func cmdIssueTicket(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	t, err := a.client.CreateTicket(ctx, pos[0])
	if err != nil {
		return err
	}
	printTicket(a.out, t)
	return nil
}

func cmdTicket(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	eventID := fs.String("event", "", "owning event id")
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	var t *client.Ticket
	if *eventID != "" {
		t, err = a.client.GetTicket(ctx, *eventID, pos[0])
	} else {
		t, err = a.client.GetTicketByID(ctx, pos[0])
	}
	if err != nil {
		return err
	}
	printTicket(a.out, t)
	return nil
}

func cmdScan(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error {
	pos, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	v := scan.NewValidator(a.client, clock.NewSystem(),
		scan.WithCooldown(0),
		scan.WithLogger(a.logger),
		scan.WithSinks(scan.LogSink(a.logger, a.printer)),
	)
	res, err := v.Scan(ctx, pos[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Notice(a.printer))
	if !res.Accepted() {
		return fmt.Errorf("%w: %s", errRejected, res.Reason)
	}
	return nil
}

func printTicket(w io.Writer, t *client.Ticket) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "Number:\t%s\n", t.TicketNumber)
	if t.Event != nil {
		fmt.Fprintf(tw, "Event:\t%s (%s)\n", t.Event.Title, t.Event.ID)
	}
	fmt.Fprintf(tw, "Attended:\t%t\n", t.Attended)
	if t.AttendanceTimestamp != nil {
		fmt.Fprintf(tw, "Attended at:\t%s\n", t.AttendanceTimestamp.Format(dateLayout))
	}
	if t.AttendanceURL != "" {
		fmt.Fprintf(tw, "Scan URL:\t%s\n", t.AttendanceURL)
	}
	if t.QRCodeURL != "" {
		fmt.Fprintf(tw, "QR code:\t%s\n", t.QRCodeURL)
	}
	tw.Flush()
}
