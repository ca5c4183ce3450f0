package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/pkg/llmutils"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/errgroup"
)

// ClientsArgs of get_clients
type ClientsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=lead,enum=qualified,enum=proposal,enum=won,enum=lost,enum=all" jsonschema_description:"Filter by status: lead, qualified, proposal, won, lost, or all"`
}

func (t *toolset) getClients(ctx context.Context, in *ClientsArgs) (string, error) {
	list, err := t.Store.ListClients(ctx, store.ClientFilter{
		Status: store.FilterStatus(in.Status),
		Limit:  ListLimit,
	})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No clients found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d clients:", len(list))
	for _, c := range list {
		fmt.Fprintf(&b, "\n- %s (%s) - %s - %s",
			c.Name, orDefault(c.Company, "No company"), c.Status, money(c.EstimatedValue))
	}
	return b.String(), nil
}

// ProjectsArgs of get_projects
type ProjectsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=planning,enum=active,enum=on_hold,enum=completed,enum=all" jsonschema_description:"Filter by status: planning, active, on_hold, completed, or all"`
}

func (t *toolset) getProjects(ctx context.Context, in *ProjectsArgs) (string, error) {
	list, err := t.Store.ListProjects(ctx, store.ProjectFilter{
		Status: store.FilterStatus(in.Status),
		Limit:  ListLimit,
	})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No projects found.", nil
	}

	today := store.Today(t.now())
	blocks := make([]string, 0, len(list))
	for _, p := range list {
		overdue := ""
		if p.IsOverdue(today) {
			overdue = " ⚠️ OVERDUE"
		}
		spentPct := 0
		if p.Budget.IsPositive() {
			spentPct = int(p.Spent.Div(p.Budget).Mul(hundred).Round(0).IntPart())
		}
		blocks = append(blocks, fmt.Sprintf("- %s\n  Status: %s%s\n  Health: %d%%\n  Budget: %s | Spent: %s (%d%%)\n  Start: %s | Due: %s\n  Notes: %s",
			p.Name,
			p.Status, overdue,
			p.HealthScore,
			money(p.Budget), money(p.Spent), spentPct,
			dateOrNotSet(p.StartDate), dateOrNotSet(p.DueDate),
			orDefault(p.Notes, "None"),
		))
	}
	return fmt.Sprintf("Found %d projects:\n%s", len(list), strings.Join(blocks, "\n\n")), nil
}

// InvoicesArgs of get_invoices
type InvoicesArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=draft,enum=sent,enum=paid,enum=overdue,enum=all" jsonschema_description:"Filter by status: draft, sent, paid, overdue, or all"`
}

func (t *toolset) getInvoices(ctx context.Context, in *InvoicesArgs) (string, error) {
	list, err := t.Store.ListInvoices(ctx, store.InvoiceFilter{
		Status: store.FilterStatus(in.Status),
		Limit:  ListLimit,
	})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "No invoices found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d invoices:", len(list))
	for _, inv := range list {
		name, email := "Unknown", "No email"
		if inv.Client != nil {
			name = orDefault(inv.Client.Name, name)
			email = orDefault(inv.Client.Email, email)
		}
		fmt.Fprintf(&b, "\n- %s: %s (%s) - Client: %s (%s) - Due: %s",
			inv.InvoiceNumber, money(inv.Amount), inv.Status, name, email, inv.DueDate.Format(time.DateOnly))
	}
	return b.String(), nil
}

// EventsArgs of get_calendar_events
type EventsArgs struct {
	Days int `json:"days,omitempty" jsonschema:"minimum=1" jsonschema_description:"Number of days to look ahead (default: 7)"`
}

func (t *toolset) getCalendarEvents(ctx context.Context, in *EventsArgs) (string, error) {
	days := in.Days
	if days <= 0 {
		days = DefaultEventDays
	}
	now := t.now()
	list, err := t.Store.ListEvents(ctx, store.EventFilter{
		From:  now,
		To:    now.AddDate(0, 0, days),
		Limit: ListLimit,
	})
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return fmt.Sprintf("No events found in the next %d days.", days), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d upcoming events:", len(list))
	for _, e := range list {
		fmt.Fprintf(&b, "\n- %s on %s", e.Title, t.formatDateTime(e.StartTime))
		if e.Location != "" {
			fmt.Fprintf(&b, " at %s", e.Location)
		}
	}
	return b.String(), nil
}

// TasksArgs of get_clickup_tasks
type TasksArgs struct {
	ListID string `json:"list_id,omitempty" jsonschema_description:"ClickUp list ID, all lists of the space when empty"`
}

func (t *toolset) getClickUpTasks(ctx context.Context, in *TasksArgs) (string, error) {
	if t.Tasks == nil {
		return "Could not fetch ClickUp tasks: " + ErrNotConfigured.Error(), nil
	}
	tasks, err := t.Tasks.GetTasks(ctx, in.ListID)
	if err != nil {
		return "Could not fetch ClickUp tasks: " + err.Error(), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d ClickUp tasks:", len(tasks))
	for i, task := range tasks {
		if i == TaskPreviewLimit {
			break
		}
		fmt.Fprintf(&b, "\n- %s (%s)", task.Name, task.StatusName())
	}
	return b.String(), nil
}

// StatsArgs of get_dashboard_stats
type StatsArgs struct{}

func (t *toolset) getDashboardStats(ctx context.Context, _ *StatsArgs) (string, error) {
	s, err := t.Store.Stats(ctx, t.now())
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "stats", "err", err.Error())
		return "Could not fetch dashboard stats.", nil
	}
	return fmt.Sprintf(`Dashboard Stats:
- Active Leads: %d
- Active Projects: %d
- Average Project Health: %d%%
- Overdue Invoices: %d (Total: %s)
- Pipeline Value: %s
- Upcoming Meetings: %d
- Time Saved This Month: %s hours`,
		s.ActiveLeads,
		s.ActiveProjects,
		s.AvgHealth,
		s.OverdueInvoices, money(s.OverdueAmount),
		money(s.PipelineValue),
		s.UpcomingMeetings,
		humanize.Ftoa(s.MonthlyTimeSaved),
	), nil
}

// SearchArgs of search_clients
type SearchArgs struct {
	Query string `json:"query" validate:"required" jsonschema_description:"The search term (name, company, or email)"`
}

func (t *toolset) searchClients(ctx context.Context, in *SearchArgs) (string, error) {
	list, err := t.Store.SearchClients(ctx, in.Query, SearchLimit)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return fmt.Sprintf("No clients found matching %q", in.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching clients:", len(list))
	for _, c := range list {
		fmt.Fprintf(&b, "\n- %s (%s) [ID: %s]", c.Name, orDefault(c.Company, "No company"), c.ID)
	}
	return b.String(), nil
}

// ClientDetailsArgs of get_client_details
type ClientDetailsArgs struct {
	ClientID string `json:"client_id" validate:"required" jsonschema_description:"The UUID of the client"`
}

func (t *toolset) getClientDetails(ctx context.Context, in *ClientDetailsArgs) (string, error) {
	var (
		client      *store.Client
		projects    []*store.Project
		invoices    []*store.Invoice
		projectsErr error
		invoicesErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		client, err = t.Store.GetClient(gctx, in.ClientID)
		return err
	})
	g.Go(func() error {
		projects, projectsErr = t.Store.ListProjects(gctx, store.ProjectFilter{ClientID: in.ClientID})
		return nil
	})
	g.Go(func() error {
		invoices, invoicesErr = t.Store.ListInvoices(gctx, store.InvoiceFilter{ClientID: in.ClientID})
		return nil
	})
	if err := g.Wait(); err != nil {
		if !store.IsNotFound(err) {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "get_client", "id", in.ClientID, "err", err.Error())
		}
		return "Client not found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Client Details for %s (%s):\n- Email: %s\n- Status: %s\n- Value: %s\n\nProjects:\n",
		client.Name, orDefault(client.Company, "No company"),
		orDefault(client.Email, "No email"),
		client.Status,
		money(client.EstimatedValue),
	)
	switch {
	case projectsErr != nil:
		b.WriteString("Projects unavailable: " + projectsErr.Error())
	case len(projects) == 0:
		b.WriteString("No projects")
	default:
		lines := make([]string, len(projects))
		for i, p := range projects {
			lines[i] = fmt.Sprintf("- %s (%s)", p.Name, p.Status)
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\nInvoices:\n")
	switch {
	case invoicesErr != nil:
		b.WriteString("Invoices unavailable: " + invoicesErr.Error())
	case len(invoices) == 0:
		b.WriteString("No invoices")
	default:
		lines := make([]string, len(invoices))
		for i, inv := range invoices {
			lines[i] = fmt.Sprintf("- #%s: %s (%s)", inv.InvoiceNumber, money(inv.Amount), inv.Status)
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String(), nil
}

// EmailsArgs of get_recent_emails
type EmailsArgs struct {
	Limit       int    `json:"limit,omitempty" jsonschema:"minimum=1" jsonschema_description:"Number of emails to fetch (default: 5)"`
	IncludeBody bool   `json:"include_body,omitempty" jsonschema_description:"Set to true to read the full content, for example to summarize emails"`
	Search      string `json:"search,omitempty" jsonschema_description:"Optional search term to filter emails"`
}

func (t *toolset) getRecentEmails(ctx context.Context, in *EmailsArgs) (string, error) {
	if t.Mail == nil {
		return "Failed to fetch recent emails: " + ErrNotConfigured.Error(), nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultEmailLimit
	}

	emails, err := t.Mail.ListMessages(ctx, google.ListOptions{
		MaxResults:  int64(limit),
		Query:       in.Search,
		IncludeBody: in.IncludeBody,
	})
	if err != nil {
		return "Failed to fetch recent emails: " + err.Error(), nil
	}
	if len(emails) == 0 {
		return "Failed to fetch recent emails: No emails found", nil
	}
	if len(emails) > limit {
		emails = emails[:limit]
	}

	var b strings.Builder
	b.WriteString("Recent Emails:")
	for _, m := range emails {
		content := m.Snippet
		if in.IncludeBody {
			content = orDefault(m.Body, m.Snippet)
		}
		content = llmutils.Truncate(content, EmailPreviewChars)
		fmt.Fprintf(&b, "\n- [%s] From: %s | Subject: %s\n  Content: %s",
			m.Date, m.From, m.Subject, orDefault(content, "No content"))
	}
	return b.String(), nil
}

// SummaryArgs of get_full_summary
type SummaryArgs struct{}

func (t *toolset) getFullSummary(ctx context.Context, _ *SummaryArgs) (string, error) {
	now := t.now()

	var (
		stats                 *store.DashboardStats
		projects              []*store.Project
		invoices              []*store.Invoice
		events                []*store.CalendarEvent
		statsErr, projectsErr error
		invoicesErr, eventErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, statsErr = t.Store.Stats(gctx, now)
		return nil
	})
	g.Go(func() error {
		projects, projectsErr = t.Store.ListProjects(gctx, store.ProjectFilter{ByHealth: true, Limit: SummaryLimit})
		return nil
	})
	g.Go(func() error {
		invoices, invoicesErr = t.Store.ListInvoices(gctx, store.InvoiceFilter{Status: string(store.InvoiceOverdue), Limit: SummaryLimit})
		return nil
	})
	g.Go(func() error {
		events, eventErr = t.Store.ListEvents(gctx, store.EventFilter{From: now, Limit: SummaryLimit})
		return nil
	})
	_ = g.Wait()

	for name, err := range map[string]error{"stats": statsErr, "projects": projectsErr, "invoices": invoicesErr, "events": eventErr} {
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "summary_section", "section", name, "err", err.Error())
		}
	}

	var b strings.Builder
	b.WriteString("EXECUTIVE SUMMARY\n\nKEY METRICS:\n")
	if statsErr != nil {
		b.WriteString("- Metrics unavailable")
	} else {
		fmt.Fprintf(&b, "- Pipeline: %s\n- Active Projects: %d\n- Overdue Invoices: %d (%s)",
			money(stats.PipelineValue), stats.ActiveProjects, stats.OverdueInvoices, money(stats.OverdueAmount))
	}

	b.WriteString("\n\nURGENT ATTENTION NEEDED:\n")
	switch {
	case invoicesErr != nil:
		b.WriteString("- Invoices unavailable")
	case len(invoices) == 0:
		b.WriteString("- No overdue invoices")
	default:
		b.WriteString("Overdue Invoices:")
		for _, inv := range invoices {
			fmt.Fprintf(&b, "\n- %s: %s", inv.InvoiceNumber, money(inv.Amount))
		}
	}

	b.WriteString("\n\nPROJECT HEALTH RISKS:\n")
	var risks []string
	for _, p := range projects {
		if p.HealthScore < HealthRiskScore {
			risks = append(risks, "- "+p.Name+": "+strconv.Itoa(p.HealthScore)+"% health")
		}
	}
	switch {
	case projectsErr != nil:
		b.WriteString("- Projects unavailable")
	case len(risks) == 0:
		b.WriteString("- All top projects healthy")
	default:
		b.WriteString(strings.Join(risks, "\n"))
	}

	b.WriteString("\n\nUPCOMING SCHEDULE:\n")
	switch {
	case eventErr != nil:
		b.WriteString("- Schedule unavailable")
	case len(events) == 0:
		b.WriteString("- No immediate events")
	default:
		lines := make([]string, len(events))
		for i, e := range events {
			lines[i] = fmt.Sprintf("- %s (%s)", e.Title, t.formatDate(e.StartTime))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String(), nil
}
