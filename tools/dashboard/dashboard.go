// Package dashboard implements the assistant tools over the dashboard data:
// the store, the task tracker, the mailbox and the calendar.
package dashboard

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/tools"
	"github.com/effective-security/xlog"
	"github.com/shopspring/decimal"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/tools", "dashboard")

// Tool names, in registration order.
const (
	GetClients          = "get_clients"
	GetProjects         = "get_projects"
	GetInvoices         = "get_invoices"
	GetCalendarEvents   = "get_calendar_events"
	GetClickUpTasks     = "get_clickup_tasks"
	SendEmail           = "send_email"
	GetDashboardStats   = "get_dashboard_stats"
	SearchClients       = "search_clients"
	GetClientDetails    = "get_client_details"
	GetRecentEmails     = "get_recent_emails"
	GetFullSummary      = "get_full_summary"
	CreateInvoice       = "create_invoice"
	CreateProject       = "create_project"
	CreateCalendarEvent = "create_calendar_event"
	DeleteCalendarEvent = "delete_calendar_event"
)

// Read limits
const (
	ListLimit         = 10
	TaskPreviewLimit  = 5
	SearchLimit       = 5
	SummaryLimit      = 5
	DefaultEmailLimit = 5
	EmailPreviewChars = 1000
	DefaultEventDays  = 7
	DefaultDueDays    = 30
	HealthRiskScore   = 70
)

// TaskTracker is the task management service.
type TaskTracker interface {
	GetLists(ctx context.Context) ([]clickup.List, error)
	GetTasks(ctx context.Context, listID string) ([]*clickup.Task, error)
	CreateTask(ctx context.Context, listID string, t *clickup.NewTask) (*clickup.Task, error)
}

// Mailer is the mailbox of the signed in user.
type Mailer interface {
	ListMessages(ctx context.Context, o google.ListOptions) ([]*google.Email, error)
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

// Calendar mirrors local events to the external calendar.
type Calendar interface {
	IsConfigured(ctx context.Context) bool
	CreateEvent(ctx context.Context, e *google.Event) (*google.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// ErrNotConfigured is reported when an optional collaborator is not wired.
var ErrNotConfigured = errors.New("service is not configured")

// Deps are the collaborators of the tools. Store is required.
type Deps struct {
	Store    store.Store
	Tasks    TaskTracker
	Mail     Mailer
	Calendar Calendar
	// Location interprets dates and times given by the user, UTC when nil.
	Location *time.Location
	// Now returns the current time, time.Now when nil.
	Now func() time.Time
}

type toolset struct {
	Deps
}

func (t *toolset) now() time.Time {
	if t.Now != nil {
		return t.Now().In(t.Location)
	}
	return time.Now().In(t.Location)
}

// Tools returns the dashboard tools in registration order.
func Tools(d Deps) []tools.ITool {
	if d.Location == nil {
		d.Location = time.UTC
	}
	t := &toolset{Deps: d}
	return []tools.ITool{
		tools.New(GetClients, "Get list of clients from the CRM database", t.getClients),
		tools.New(GetProjects, "Get list of projects", t.getProjects),
		tools.New(GetInvoices, "Get list of invoices", t.getInvoices),
		tools.New(GetCalendarEvents, "Get upcoming calendar events", t.getCalendarEvents),
		tools.New(GetClickUpTasks, "Get tasks from ClickUp", t.getClickUpTasks),
		tools.New(SendEmail, "Send an email to someone", t.sendEmail),
		tools.New(GetDashboardStats, "Get dashboard statistics and KPIs", t.getDashboardStats),
		tools.New(SearchClients, "Search for clients by name, company, or email", t.searchClients),
		tools.New(GetClientDetails, "Get detailed information about a specific client including their projects and invoices", t.getClientDetails),
		tools.New(GetRecentEmails, "Get recent emails from the inbox", t.getRecentEmails),
		tools.New(GetFullSummary, "Get a comprehensive summary of the business including all key metrics, active projects overview, and urgent items", t.getFullSummary),
		tools.New(CreateInvoice, "Create a new invoice for a client", t.createInvoice),
		tools.New(CreateProject, "Create a new project", t.createProject),
		tools.New(CreateCalendarEvent, "Create a new calendar event or meeting", t.createCalendarEvent),
		tools.New(DeleteCalendarEvent, "Delete/cancel a calendar event", t.deleteCalendarEvent),
	}
}

// NewRegistry returns the registry of the dashboard tools.
func NewRegistry(d Deps) (*tools.Registry, error) {
	return tools.NewRegistry(Tools(d)...)
}

var hundred = decimal.NewFromInt(100)

// money formats the amount in dollars.
func money(d decimal.Decimal) string {
	return "$" + humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func dateOrNotSet(t *time.Time) string {
	if t == nil {
		return "Not set"
	}
	return t.Format(time.DateOnly)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// formatDateTime renders the time in the user location.
func (t *toolset) formatDateTime(v time.Time) string {
	return v.In(t.Location).Format("Jan 2, 2006 3:04 PM")
}

func (t *toolset) formatDate(v time.Time) string {
	return v.In(t.Location).Format("Jan 2, 2006")
}
