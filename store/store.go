package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "store")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// StatusAll disables the status filter.
const StatusAll = "all"

// SettingsStore persists the key/value settings.
type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	// PutSettings upserts the values, last writer wins.
	PutSettings(ctx context.Context, values map[string]string) error
}

// ClientFilter selects clients, newest first.
type ClientFilter struct {
	// Status is ignored when empty or StatusAll.
	Status string
	Limit  int
}

// ClientStore persists clients.
type ClientStore interface {
	ListClients(ctx context.Context, f ClientFilter) ([]*Client, error)
	// SearchClients matches the query as a case insensitive substring
	// of the name, company or email.
	SearchClients(ctx context.Context, query string, limit int) ([]*Client, error)
	// FindClientByName returns the first client whose name contains name,
	// or ErrNotFound.
	FindClientByName(ctx context.Context, name string) (*Client, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	CreateClient(ctx context.Context, c *Client) (*Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// ProjectFilter selects projects, newest first unless ByHealth is set.
type ProjectFilter struct {
	Status   string
	ClientID string
	// ByHealth orders by health score, lowest first.
	ByHealth bool
	Limit    int
}

// ProjectStore persists projects.
type ProjectStore interface {
	ListProjects(ctx context.Context, f ProjectFilter) ([]*Project, error)
	CreateProject(ctx context.Context, p *Project) (*Project, error)
	// UpsertProjectByClickUpID updates the project linked to p.ClickUpTaskID,
	// or creates it. Returns true when created.
	UpsertProjectByClickUpID(ctx context.Context, p *Project) (bool, error)
	DeleteProject(ctx context.Context, id string) error
}

// InvoiceFilter selects invoices, earliest due first.
type InvoiceFilter struct {
	Status   string
	ClientID string
	Limit    int
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]*Invoice, error)
	CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
}

// EventFilter selects events by start time, earliest first.
// Zero From or To leaves that side open.
type EventFilter struct {
	From time.Time
	To   time.Time
	// Title is matched as a case insensitive substring.
	Title string
	Limit int
}

// EventStore persists calendar events.
type EventStore interface {
	ListEvents(ctx context.Context, f EventFilter) ([]*CalendarEvent, error)
	GetEvent(ctx context.Context, id string) (*CalendarEvent, error)
	CreateEvent(ctx context.Context, e *CalendarEvent) (*CalendarEvent, error)
	// UpsertEventByGoogleID updates the event linked to e.GoogleEventID,
	// or creates it. Returns true when created.
	UpsertEventByGoogleID(ctx context.Context, e *CalendarEvent) (bool, error)
	DeleteEvent(ctx context.Context, id string) error
}

// AutomationStore records the automated actions.
type AutomationStore interface {
	AddAutomationLog(ctx context.Context, l *AutomationLog) error
	// RecordROI adds the counters to the metric row of the date.
	RecordROI(ctx context.Context, date time.Time, tasks, events int, hours float64) error
	GetROI(ctx context.Context, date time.Time) (*ROIMetric, error)
}

// StatsStore computes the dashboard KPIs.
type StatsStore interface {
	Stats(ctx context.Context, now time.Time) (*DashboardStats, error)
}

// Store is the primary data store.
type Store interface {
	SettingsStore
	ClientStore
	ProjectStore
	InvoiceStore
	EventStore
	AutomationStore
	StatsStore
}

// IsNotFound returns true when err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FilterStatus returns the status to filter by, empty for no filter.
func FilterStatus(status string) string {
	if status == StatusAll {
		return ""
	}
	return status
}
