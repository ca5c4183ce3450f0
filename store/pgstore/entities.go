package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/store"
	"github.com/lib/pq"
)

type scanner interface {
	Scan(dest ...any) error
}

const clientColumns = `c.id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.company, ''),
	c.status, COALESCE(c.source, ''), c.estimated_value, COALESCE(c.notes, ''), c.last_contact_date,
	c.created_at, c.updated_at`

func scanClient(row scanner) (*store.Client, error) {
	c := new(store.Client)
	var lastContact sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company,
		&c.Status, &c.Source, &c.EstimatedValue, &c.Notes, &lastContact,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.LastContactDate = timePtr(lastContact)
	return c, nil
}

func (p *Provider) queryClients(ctx context.Context, query string, args ...any) ([]*store.Client, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query clients")
	}
	defer rows.Close()

	var res []*store.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan client")
		}
		res = append(res, c)
	}
	return res, errors.WithStack(rows.Err())
}

// ListClients implements store.ClientStore
func (p *Provider) ListClients(ctx context.Context, f store.ClientFilter) ([]*store.Client, error) {
	w := new(where)
	if status := store.FilterStatus(f.Status); status != "" {
		w.add("c.status = ?", status)
	}
	return p.queryClients(ctx,
		`SELECT `+clientColumns+` FROM clients c`+w.String()+` ORDER BY c.created_at DESC`+limitClause(f.Limit),
		w.args...)
}

// SearchClients implements store.ClientStore
func (p *Provider) SearchClients(ctx context.Context, query string, limit int) ([]*store.Client, error) {
	return p.queryClients(ctx,
		`SELECT `+clientColumns+` FROM clients c
		WHERE c.name ILIKE $1 OR c.company ILIKE $1 OR c.email ILIKE $1
		ORDER BY c.created_at`+limitClause(limit),
		containsPattern(query))
}

// FindClientByName implements store.ClientStore
func (p *Provider) FindClientByName(ctx context.Context, name string) (*store.Client, error) {
	c, err := scanClient(p.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients c WHERE c.name ILIKE $1 ORDER BY c.created_at LIMIT 1`,
		containsPattern(name)))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// GetClient implements store.ClientStore
func (p *Provider) GetClient(ctx context.Context, id string) (*store.Client, error) {
	c, err := scanClient(p.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients c WHERE c.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// CreateClient implements store.ClientStore
func (p *Provider) CreateClient(ctx context.Context, c *store.Client) (*store.Client, error) {
	status := c.Status
	if status == "" {
		status = store.ClientLead
	}
	res, err := scanClient(p.db.QueryRowContext(ctx,
		`INSERT INTO clients AS c (name, email, phone, company, status, source, estimated_value, notes, last_contact_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+clientColumns,
		c.Name,
		nullString(c.Email),
		nullString(c.Phone),
		nullString(c.Company),
		status,
		nullString(c.Source),
		c.EstimatedValue,
		nullString(c.Notes),
		nullDate(c.LastContactDate),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unable to insert client")
	}
	return res, nil
}

// DeleteClient implements store.ClientStore
func (p *Provider) DeleteClient(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	return errors.Wrap(err, "unable to delete client")
}

const projectColumns = `p.id, p.name, COALESCE(p.client_id::text, ''), COALESCE(p.clickup_task_id, ''),
	p.status, p.budget, p.spent, p.start_date, p.due_date, p.health_score, COALESCE(p.notes, ''),
	p.created_at, p.updated_at`

func scanProject(row scanner) (*store.Project, error) {
	p := new(store.Project)
	var start, due sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.ClientID, &p.ClickUpTaskID,
		&p.Status, &p.Budget, &p.Spent, &start, &due, &p.HealthScore, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StartDate = timePtr(start)
	p.DueDate = timePtr(due)
	return p, nil
}

// ListProjects implements store.ProjectStore
func (p *Provider) ListProjects(ctx context.Context, f store.ProjectFilter) ([]*store.Project, error) {
	w := new(where)
	if status := store.FilterStatus(f.Status); status != "" {
		w.add("p.status = ?", status)
	}
	if f.ClientID != "" {
		w.add("p.client_id = ?", f.ClientID)
	}
	order := ` ORDER BY p.created_at DESC`
	if f.ByHealth {
		order = ` ORDER BY p.health_score, p.created_at DESC`
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p`+w.String()+order+limitClause(f.Limit),
		w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query projects")
	}
	defer rows.Close()

	var res []*store.Project
	for rows.Next() {
		pr, err := scanProject(rows)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan project")
		}
		res = append(res, pr)
	}
	return res, errors.WithStack(rows.Err())
}

// CreateProject implements store.ProjectStore
func (p *Provider) CreateProject(ctx context.Context, pr *store.Project) (*store.Project, error) {
	status := pr.Status
	if status == "" {
		status = store.ProjectPlanning
	}
	res, err := scanProject(p.db.QueryRowContext(ctx,
		`INSERT INTO projects AS p (name, client_id, clickup_task_id, status, budget, spent, start_date, due_date, health_score, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+projectColumns,
		pr.Name,
		nullUUID(pr.ClientID),
		nullString(pr.ClickUpTaskID),
		status,
		pr.Budget,
		pr.Spent,
		nullDate(pr.StartDate),
		nullDate(pr.DueDate),
		pr.HealthScore,
		nullString(pr.Notes),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unable to insert project")
	}
	return res, nil
}

// UpsertProjectByClickUpID implements store.ProjectStore
func (p *Provider) UpsertProjectByClickUpID(ctx context.Context, pr *store.Project) (bool, error) {
	if pr.ClickUpTaskID == "" {
		return false, errors.New("clickup task ID is required")
	}
	var created bool
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO projects (name, clickup_task_id, status, health_score, notes, start_date, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (clickup_task_id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			health_score = EXCLUDED.health_score,
			notes = EXCLUDED.notes,
			start_date = EXCLUDED.start_date,
			due_date = EXCLUDED.due_date,
			updated_at = now()
		RETURNING (xmax = 0)`,
		pr.Name,
		pr.ClickUpTaskID,
		pr.Status,
		pr.HealthScore,
		nullString(pr.Notes),
		nullDate(pr.StartDate),
		nullDate(pr.DueDate),
	).Scan(&created)
	if err != nil {
		return false, errors.Wrapf(err, "unable to upsert project %s", pr.ClickUpTaskID)
	}
	return created, nil
}

// DeleteProject implements store.ProjectStore
func (p *Provider) DeleteProject(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return errors.Wrap(err, "unable to delete project")
}

const invoiceColumns = `i.id, i.invoice_number, COALESCE(i.client_id::text, ''), i.amount, i.status,
	i.issue_date, i.due_date, i.paid_date, i.created_at, i.updated_at`

func scanInvoice(row scanner, dest ...any) (*store.Invoice, error) {
	inv := new(store.Invoice)
	var paid sql.NullTime
	err := row.Scan(append([]any{&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &inv.Amount, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &paid, &inv.CreatedAt, &inv.UpdatedAt}, dest...)...)
	if err != nil {
		return nil, err
	}
	inv.PaidDate = timePtr(paid)
	return inv, nil
}

// ListInvoices implements store.InvoiceStore
func (p *Provider) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]*store.Invoice, error) {
	w := new(where)
	if status := store.FilterStatus(f.Status); status != "" {
		w.add("i.status = ?", status)
	}
	if f.ClientID != "" {
		w.add("i.client_id = ?", f.ClientID)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+`, c.name, COALESCE(c.email, '')
		FROM invoices i LEFT JOIN clients c ON c.id = i.client_id`+
			w.String()+` ORDER BY i.due_date, i.created_at`+limitClause(f.Limit),
		w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query invoices")
	}
	defer rows.Close()

	var res []*store.Invoice
	for rows.Next() {
		var name sql.NullString
		var email string
		inv, err := scanInvoice(rows, &name, &email)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan invoice")
		}
		if name.Valid {
			inv.Client = &store.ClientRef{Name: name.String, Email: email}
		}
		res = append(res, inv)
	}
	return res, errors.WithStack(rows.Err())
}

// CreateInvoice implements store.InvoiceStore
func (p *Provider) CreateInvoice(ctx context.Context, inv *store.Invoice) (*store.Invoice, error) {
	status := inv.Status
	if status == "" {
		status = store.InvoiceDraft
	}
	issue := inv.IssueDate
	if issue.IsZero() {
		issue = time.Now()
	}
	res, err := scanInvoice(p.db.QueryRowContext(ctx,
		`INSERT INTO invoices AS i (invoice_number, client_id, amount, status, issue_date, due_date, paid_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+invoiceColumns,
		inv.InvoiceNumber,
		nullUUID(inv.ClientID),
		inv.Amount,
		status,
		issue.Format(dateFormat),
		inv.DueDate.Format(dateFormat),
		nullDate(inv.PaidDate),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unable to insert invoice")
	}
	return res, nil
}

// DeleteInvoice implements store.InvoiceStore
func (p *Provider) DeleteInvoice(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	return errors.Wrap(err, "unable to delete invoice")
}

const eventColumns = `e.id, COALESCE(e.google_event_id, ''), e.title, COALESCE(e.description, ''),
	e.start_time, e.end_time, COALESCE(e.location, ''), e.attendees, e.created_at`

func scanEvent(row scanner) (*store.CalendarEvent, error) {
	e := new(store.CalendarEvent)
	err := row.Scan(&e.ID, &e.GoogleEventID, &e.Title, &e.Description,
		&e.StartTime, &e.EndTime, &e.Location, pq.Array(&e.Attendees), &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvents implements store.EventStore
func (p *Provider) ListEvents(ctx context.Context, f store.EventFilter) ([]*store.CalendarEvent, error) {
	w := new(where)
	if !f.From.IsZero() {
		w.add("e.start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("e.start_time <= ?", f.To)
	}
	if f.Title != "" {
		w.add("e.title ILIKE ?", containsPattern(f.Title))
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events e`+w.String()+` ORDER BY e.start_time`+limitClause(f.Limit),
		w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query events")
	}
	defer rows.Close()

	var res []*store.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan event")
		}
		res = append(res, e)
	}
	return res, errors.WithStack(rows.Err())
}

// GetEvent implements store.EventStore
func (p *Provider) GetEvent(ctx context.Context, id string) (*store.CalendarEvent, error) {
	e, err := scanEvent(p.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events e WHERE e.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// CreateEvent implements store.EventStore
func (p *Provider) CreateEvent(ctx context.Context, e *store.CalendarEvent) (*store.CalendarEvent, error) {
	res, err := scanEvent(p.db.QueryRowContext(ctx,
		`INSERT INTO calendar_events AS e (google_event_id, title, description, start_time, end_time, location, attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+eventColumns,
		nullString(e.GoogleEventID),
		e.Title,
		nullString(e.Description),
		e.StartTime,
		e.EndTime,
		nullString(e.Location),
		pq.Array(e.Attendees),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unable to insert event")
	}
	return res, nil
}

// UpsertEventByGoogleID implements store.EventStore
func (p *Provider) UpsertEventByGoogleID(ctx context.Context, e *store.CalendarEvent) (bool, error) {
	if e.GoogleEventID == "" {
		return false, errors.New("google event ID is required")
	}
	var created bool
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO calendar_events (google_event_id, title, description, start_time, end_time, location, attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (google_event_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			location = EXCLUDED.location,
			attendees = EXCLUDED.attendees
		RETURNING (xmax = 0)`,
		e.GoogleEventID,
		e.Title,
		nullString(e.Description),
		e.StartTime,
		e.EndTime,
		nullString(e.Location),
		pq.Array(e.Attendees),
	).Scan(&created)
	if err != nil {
		return false, errors.Wrapf(err, "unable to upsert event %s", e.GoogleEventID)
	}
	return created, nil
}

// DeleteEvent implements store.EventStore
func (p *Provider) DeleteEvent(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	return errors.Wrap(err, "unable to delete event")
}
