package google

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// DefaultCalendarID is the calendar of the signed in user.
	DefaultCalendarID = "primary"
	// DefaultEventsWindow is the window of ListEvents when to is zero.
	DefaultEventsWindow = 30 * 24 * time.Hour
	// DefaultMaxEvents is the page size of ListEvents.
	DefaultMaxEvents = 50
)

// ErrCalendarNotConfigured is returned when there is no stored token
// and no service account.
var ErrCalendarNotConfigured = errors.New("Google Calendar credentials not configured in Settings")

// ServiceAccount is the fallback identity of the calendar client.
type ServiceAccount struct {
	Email      string
	PrivateKey string
	// Subject is the user to impersonate, optional.
	Subject string
}

// ServiceAccountFunc returns the service account, resolved on every call.
type ServiceAccountFunc func(ctx context.Context) ServiceAccount

// Event is a calendar event.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	HTMLLink    string    `json:"html_link,omitempty"`
}

// Calendar is the Google Calendar client.
// It uses the stored OAuth token, or the service account when not signed in.
type Calendar struct {
	oauth      *OAuth
	sa         ServiceAccountFunc
	calendarID string
	opts       []option.ClientOption
}

// NewCalendar returns the calendar client,
// opts are applied after the authorized HTTP client.
func NewCalendar(oauth *OAuth, sa ServiceAccountFunc, calendarID string, opts ...option.ClientOption) *Calendar {
	return &Calendar{
		oauth:      oauth,
		sa:         sa,
		calendarID: values.StringsCoalesce(calendarID, DefaultCalendarID),
		opts:       opts,
	}
}

// IsConfigured returns true when the user is signed in or the service account is set.
func (c *Calendar) IsConfigured(ctx context.Context) bool {
	if c.oauth != nil && c.oauth.IsAuthenticated(ctx) {
		return true
	}
	if c.sa == nil {
		return false
	}
	sa := c.sa(ctx)
	return sa.Email != "" && sa.PrivateKey != ""
}

func (c *Calendar) httpClient(ctx context.Context) (*http.Client, error) {
	if c.oauth != nil {
		hc, err := c.oauth.Client(ctx)
		if err == nil {
			return hc, nil
		}
		if !errors.Is(err, ErrNotAuthenticated) {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "oauth", "err", err.Error())
		}
	}

	if c.sa == nil {
		return nil, errors.WithStack(ErrCalendarNotConfigured)
	}
	sa := c.sa(ctx)
	if sa.Email == "" || sa.PrivateKey == "" {
		return nil, errors.WithStack(ErrCalendarNotConfigured)
	}

	conf := &jwt.Config{
		Email: sa.Email,
		// keys pasted into settings keep escaped new lines
		PrivateKey: []byte(strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")),
		Scopes:     []string{calendar.CalendarScope},
		TokenURL:   googleoauth.JWTTokenURL,
	}

	if sa.Subject != "" {
		conf.Subject = sa.Subject
		_, err := conf.TokenSource(ctx).Token()
		if err == nil {
			return conf.Client(ctx), nil
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "impersonation",
			"subject", sa.Subject,
			"err", err.Error(),
		)
		conf.Subject = ""
	}
	return conf.Client(ctx), nil
}

func (c *Calendar) service(ctx context.Context) (*calendar.Service, error) {
	hc, err := c.httpClient(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, c.opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "calendar: failed to create service")
	}
	return svc, nil
}

// ListEvents returns single events starting between from and to, ordered by start time.
func (c *Calendar) ListEvents(ctx context.Context, from, to time.Time, maxResults int64) ([]*Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	if from.IsZero() {
		from = time.Now()
	}
	if to.IsZero() {
		to = from.Add(DefaultEventsWindow)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxEvents
	}

	res, err := svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("calendar", err)
	}

	events := make([]*Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, fromAPI(item))
	}
	return events, nil
}

// CreateEvent inserts the event and returns it as stored by Google.
func (c *Calendar) CreateEvent(ctx context.Context, e *Event) (*Event, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	req := &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       &calendar.EventDateTime{DateTime: e.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: e.End.Format(time.RFC3339)},
	}
	for _, a := range e.Attendees {
		req.Attendees = append(req.Attendees, &calendar.EventAttendee{Email: a})
	}

	res, err := svc.Events.Insert(c.calendarID, req).Context(ctx).Do()
	if err != nil {
		return nil, apiError("calendar", err)
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "event_created", "id", res.Id)
	return fromAPI(res), nil
}

// DeleteEvent deletes the event.
func (c *Calendar) DeleteEvent(ctx context.Context, eventID string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	if err = svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return apiError("calendar", err)
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "event_deleted", "id", eventID)
	return nil
}

// Ping checks access to the calendar.
func (c *Calendar) Ping(ctx context.Context) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.CalendarList.Get(c.calendarID).Context(ctx).Do()
	return apiError("calendar", err)
}

func fromAPI(item *calendar.Event) *Event {
	e := &Event{
		ID:          item.Id,
		Summary:     values.StringsCoalesce(item.Summary, "Untitled"),
		Description: item.Description,
		Location:    item.Location,
		HTMLLink:    item.HtmlLink,
	}
	e.Start, e.AllDay = parseEventTime(item.Start)
	e.End, _ = parseEventTime(item.End)
	for _, a := range item.Attendees {
		if a.Email != "" {
			e.Attendees = append(e.Attendees, a.Email)
		}
	}
	return e
}

// parseEventTime returns the time and true for all day events.
func parseEventTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err == nil {
			return t, false
		}
	}
	if dt.Date != "" {
		t, err := time.Parse(time.DateOnly, dt.Date)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
