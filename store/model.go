package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientStatus is the sales stage of a client.
type ClientStatus string

// Client statuses
const (
	ClientLead      ClientStatus = "lead"
	ClientQualified ClientStatus = "qualified"
	ClientProposal  ClientStatus = "proposal"
	ClientWon       ClientStatus = "won"
	ClientLost      ClientStatus = "lost"
)

// ProjectStatus is the delivery stage of a project.
type ProjectStatus string

// Project statuses
const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

// InvoiceStatus is the payment stage of an invoice.
type InvoiceStatus string

// Invoice statuses
const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// MaxHealthScore is the health of a project with no risks.
const MaxHealthScore = 100

// Client is a CRM record.
type Client struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	Company         string          `json:"company,omitempty"`
	Status          ClientStatus    `json:"status"`
	Source          string          `json:"source,omitempty"`
	EstimatedValue  decimal.Decimal `json:"estimated_value"`
	Notes           string          `json:"notes,omitempty"`
	LastContactDate *time.Time      `json:"last_contact_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Project is a delivery record, optionally linked to a ClickUp task.
type Project struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	ClientID      string          `json:"client_id,omitempty"`
	ClickUpTaskID string          `json:"clickup_task_id,omitempty"`
	Status        ProjectStatus   `json:"status"`
	Budget        decimal.Decimal `json:"budget"`
	Spent         decimal.Decimal `json:"spent"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	HealthScore   int             `json:"health_score"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsOverdue returns true for an active project past its due date.
func (p *Project) IsOverdue(today time.Time) bool {
	return p.Status == ProjectActive && p.DueDate != nil && p.DueDate.Before(today)
}

// ClientRef is the client summary joined to an invoice.
type ClientRef struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Invoice is a billing record.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      string          `json:"client_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Client is set by list queries.
	Client *ClientRef `json:"clients,omitempty"`
}

// IsOverdue returns true when the invoice is marked overdue,
// or was sent and is past its due date.
func (i *Invoice) IsOverdue(today time.Time) bool {
	return i.Status == InvoiceOverdue || (i.Status == InvoiceSent && i.DueDate.Before(today))
}

// CalendarEvent is a meeting, optionally mirrored in Google Calendar.
type CalendarEvent struct {
	ID            string    `json:"id"`
	GoogleEventID string    `json:"google_event_id,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Location      string    `json:"location,omitempty"`
	Attendees     []string  `json:"attendees,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Automation action types
const (
	ActionClickUpSync     = "clickup_sync"
	ActionCalendarSync    = "calendar_sync"
	ActionEmailSent       = "email_sent"
	ActionInvoiceReminder = "invoice_reminder"
)

// AutomationLog records the outcome of an automated action.
type AutomationLog struct {
	ID         string    `json:"id"`
	ActionType string    `json:"action_type"`
	Details    string    `json:"details"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// ROIMetric is the daily automation counter.
type ROIMetric struct {
	MetricDate     time.Time `json:"metric_date"`
	TasksSynced    int       `json:"tasks_synced"`
	EventsSynced   int       `json:"events_synced"`
	TimeSavedHours float64   `json:"time_saved_hours"`
}

// DashboardStats are the KPIs computed from the tables.
type DashboardStats struct {
	ActiveLeads      int             `json:"active_leads"`
	TotalClients     int             `json:"total_clients"`
	ActiveProjects   int             `json:"active_projects"`
	OverdueProjects  int             `json:"overdue_projects"`
	AvgHealth        int             `json:"avg_health"`
	OverdueInvoices  int             `json:"overdue_invoices"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
	PipelineValue    decimal.Decimal `json:"pipeline_value"`
	UpcomingMeetings int             `json:"upcoming_meetings"`
	MonthlyTimeSaved float64         `json:"monthly_time_saved"`
}

// Windows used by the stats computation.
const (
	UpcomingWindow = 7 * 24 * time.Hour
	ROIWindow      = 30 * 24 * time.Hour
)

// Today returns the calendar date of t, as midnight UTC.
// Date columns are compared against this value.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
