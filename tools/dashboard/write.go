package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
	"github.com/shopspring/decimal"
)

// Date and time layouts accepted from the model.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = DateLayout + " " + TimeLayout
)

// SendEmailArgs of send_email
type SendEmailArgs struct {
	To      string `json:"to" validate:"required" jsonschema_description:"Recipient email address"`
	Subject string `json:"subject" validate:"required" jsonschema_description:"Email subject"`
	Body    string `json:"body" validate:"required" jsonschema_description:"Email body content (HTML supported)"`
}

// ValidationMessage implements tools.ValidationMessager
func (SendEmailArgs) ValidationMessage() string {
	return "Missing required email fields (to, subject, body)"
}

func (t *toolset) sendEmail(ctx context.Context, in *SendEmailArgs) (string, error) {
	if t.Mail == nil {
		return "Failed to send email: " + ErrNotConfigured.Error(), nil
	}
	id, err := t.Mail.Send(ctx, in.To, in.Subject, in.Body)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "send_email", "to", in.To, "err", err.Error())
		return "Failed to send email: " + err.Error(), nil
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "email_sent", "to", in.To, "id", id)
	return "Email sent successfully to " + in.To, nil
}

// CreateInvoiceArgs of create_invoice
type CreateInvoiceArgs struct {
	ClientName string  `json:"client_name" validate:"required" jsonschema_description:"Name of the client (will search for matching client)"`
	Amount     float64 `json:"amount" validate:"required" jsonschema_description:"Invoice amount in dollars"`
	DueDays    int     `json:"due_days,omitempty" jsonschema:"minimum=1" jsonschema_description:"Number of days until due (default: 30)"`
}

// ValidationMessage implements tools.ValidationMessager
func (CreateInvoiceArgs) ValidationMessage() string {
	return "Missing required fields: client_name and amount are required"
}

func (t *toolset) createInvoice(ctx context.Context, in *CreateInvoiceArgs) (string, error) {
	client, err := t.Store.FindClientByName(ctx, in.ClientName)
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Sprintf("No client found matching %q. Please create the client first.", in.ClientName), nil
		}
		return "Failed to create invoice: " + err.Error(), nil
	}

	dueDays := in.DueDays
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	now := t.now()
	today := store.Today(now)

	inv, err := t.Store.CreateInvoice(ctx, &store.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%06d", now.UnixMilli()%1_000_000),
		ClientID:      client.ID,
		Amount:        decimal.NewFromFloat(in.Amount).Round(2),
		Status:        store.InvoiceDraft,
		IssueDate:     today,
		DueDate:       today.AddDate(0, 0, dueDays),
	})
	if err != nil {
		return "Failed to create invoice: " + err.Error(), nil
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "invoice_created",
		"number", inv.InvoiceNumber,
		"client", client.ID,
	)
	return fmt.Sprintf("✅ Invoice %s created for %s - %s (due in %d days)",
		inv.InvoiceNumber, client.Name, money(inv.Amount), dueDays), nil
}

// CreateProjectArgs of create_project
type CreateProjectArgs struct {
	Name    string  `json:"name" validate:"required" jsonschema_description:"Project name"`
	Budget  float64 `json:"budget,omitempty" jsonschema:"minimum=0" jsonschema_description:"Project budget in dollars"`
	DueDate string  `json:"due_date,omitempty" jsonschema_description:"Due date in YYYY-MM-DD format"`
	Notes   string  `json:"notes,omitempty" jsonschema_description:"Project notes or description"`
}

func (t *toolset) createProject(ctx context.Context, in *CreateProjectArgs) (string, error) {
	var due *time.Time
	if in.DueDate != "" {
		d, err := time.Parse(DateLayout, in.DueDate)
		if err != nil {
			return fmt.Sprintf("Failed to create project: invalid due date %q, expected YYYY-MM-DD", in.DueDate), nil
		}
		due = &d
	}

	taskID := t.createClickUpTask(ctx, in, due)

	today := store.Today(t.now())
	p, err := t.Store.CreateProject(ctx, &store.Project{
		Name:          in.Name,
		ClickUpTaskID: taskID,
		Status:        store.ProjectPlanning,
		Budget:        decimal.NewFromFloat(in.Budget).Round(2),
		StartDate:     &today,
		DueDate:       due,
		HealthScore:   store.MaxHealthScore,
		Notes:         in.Notes,
	})
	if err != nil {
		if taskID != "" {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "project_not_saved", "clickup_task", taskID, "err", err.Error())
			return fmt.Sprintf("⚠️ Project %q was created in ClickUp (task %s) but could not be saved locally: %s", in.Name, taskID, err.Error()), nil
		}
		return "Failed to create project: " + err.Error(), nil
	}

	budget := ""
	if p.Budget.IsPositive() {
		budget = " with budget " + money(p.Budget)
	}
	if taskID != "" {
		return fmt.Sprintf("✅ Project %q created successfully in both ClickUp and local database%s", p.Name, budget), nil
	}
	return fmt.Sprintf("✅ Project %q created locally%s (Note: Could not sync to ClickUp - check ClickUp settings)", p.Name, budget), nil
}

// createClickUpTask adds the project to the first list of the space,
// and returns the task ID, or empty on failure.
func (t *toolset) createClickUpTask(ctx context.Context, in *CreateProjectArgs, due *time.Time) string {
	if t.Tasks == nil {
		return ""
	}
	lists, err := t.Tasks.GetLists(ctx)
	if err != nil || len(lists) == 0 {
		reason := "no lists"
		if err != nil {
			reason = err.Error()
		}
		logger.ContextKV(ctx, xlog.WARNING, "reason", "clickup_lists", "err", reason)
		return ""
	}

	nt := &clickup.NewTask{
		Name:        in.Name,
		Description: orDefault(in.Notes, "Project created via AI chat"),
	}
	if due != nil {
		y, m, d := due.Date()
		nt.DueDate = time.Date(y, m, d, 0, 0, 0, 0, t.Location).UnixMilli()
	}
	task, err := t.Tasks.CreateTask(ctx, lists[0].ID, nt)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "clickup_create", "list", lists[0].ID, "err", err.Error())
		return ""
	}
	return task.ID
}

// CreateEventArgs of create_calendar_event
type CreateEventArgs struct {
	Title         string   `json:"title" validate:"required" jsonschema_description:"Event title"`
	Date          string   `json:"date" validate:"required" jsonschema_description:"Date in YYYY-MM-DD format"`
	Time          string   `json:"time" validate:"required" jsonschema_description:"Start time in HH:MM format (24-hour)"`
	DurationHours float64  `json:"duration_hours,omitempty" jsonschema:"exclusiveMinimum=0" jsonschema_description:"Duration in hours (default: 1)"`
	Description   string   `json:"description,omitempty" jsonschema_description:"Event description"`
	Location      string   `json:"location,omitempty" jsonschema_description:"Event location"`
	Attendees     []string `json:"attendees,omitempty" jsonschema_description:"Email addresses of the attendees"`
}

// ValidationMessage implements tools.ValidationMessager
func (CreateEventArgs) ValidationMessage() string {
	return "Missing required fields: title, date, and time are required"
}

func (t *toolset) createCalendarEvent(ctx context.Context, in *CreateEventArgs) (string, error) {
	start, err := time.ParseInLocation(DateTimeLayout, in.Date+" "+in.Time, t.Location)
	if err != nil {
		return fmt.Sprintf("Failed to create event: invalid date or time %q, expected YYYY-MM-DD and HH:MM", in.Date+" "+in.Time), nil
	}
	hours := in.DurationHours
	if hours <= 0 {
		hours = 1
	}
	e := &store.CalendarEvent{
		Title:       in.Title,
		Description: in.Description,
		StartTime:   start,
		EndTime:     start.Add(time.Duration(hours * float64(time.Hour))),
		Location:    in.Location,
		Attendees:   in.Attendees,
	}

	if t.Calendar != nil && t.Calendar.IsConfigured(ctx) {
		ge, err := t.Calendar.CreateEvent(ctx, &google.Event{
			Summary:     e.Title,
			Description: e.Description,
			Location:    e.Location,
			Start:       e.StartTime,
			End:         e.EndTime,
			Attendees:   e.Attendees,
		})
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "google_create_event", "err", err.Error())
		} else {
			e.GoogleEventID = ge.ID
		}
	}

	if _, err = t.Store.CreateEvent(ctx, e); err != nil {
		return "Failed to create event: " + err.Error(), nil
	}

	res := fmt.Sprintf("✅ Calendar event %q created for %s at %s", in.Title, in.Date, in.Time)
	if in.Location != "" {
		res += " at " + in.Location
	}
	return res, nil
}

// DeleteEventArgs of delete_calendar_event
type DeleteEventArgs struct {
	Title string `json:"title" validate:"required" jsonschema_description:"Title of the event to delete (partial match supported)"`
	Date  string `json:"date" validate:"required" jsonschema_description:"Date of the event in YYYY-MM-DD format"`
	Time  string `json:"time,omitempty" jsonschema_description:"Start time in HH:MM format, to pick one of several matches"`
}

// ValidationMessage implements tools.ValidationMessager
func (DeleteEventArgs) ValidationMessage() string {
	return "Missing required fields: title and date are required to identify the event"
}

func (t *toolset) deleteCalendarEvent(ctx context.Context, in *DeleteEventArgs) (string, error) {
	day, err := time.ParseInLocation(DateLayout, in.Date, t.Location)
	if err != nil {
		return fmt.Sprintf("Failed to delete event: invalid date %q, expected YYYY-MM-DD", in.Date), nil
	}

	list, err := t.Store.ListEvents(ctx, store.EventFilter{
		From:  day,
		To:    day.AddDate(0, 0, 1).Add(-time.Millisecond),
		Title: in.Title,
	})
	if err != nil {
		return "Failed to delete event: " + err.Error(), nil
	}
	if in.Time != "" {
		at := strings.TrimSpace(in.Time)
		matched := list[:0]
		for _, e := range list {
			if e.StartTime.In(t.Location).Format(TimeLayout) == at {
				matched = append(matched, e)
			}
		}
		list = matched
	}

	switch len(list) {
	case 0:
		return fmt.Sprintf("Could not find any event matching %q on %s.", in.Title, in.Date), nil
	case 1:
	default:
		return fmt.Sprintf("Found multiple events matching %q on %s. Please be more specific with the title or time.", in.Title, in.Date), nil
	}

	e := list[0]
	if e.GoogleEventID != "" && t.Calendar != nil && t.Calendar.IsConfigured(ctx) {
		if err = t.Calendar.DeleteEvent(ctx, e.GoogleEventID); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "google_delete_event",
				"google_id", e.GoogleEventID,
				"err", err.Error())
		}
	}
	if err = t.Store.DeleteEvent(ctx, e.ID); err != nil {
		return "Failed to delete event: " + err.Error(), nil
	}

	logger.ContextKV(ctx, xlog.INFO, "status", "event_deleted", "id", e.ID, "title", e.Title)
	return fmt.Sprintf("✅ Deleted event: %q on %s", e.Title, t.formatDateTime(e.StartTime)), nil
}
