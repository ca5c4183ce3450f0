package store

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

type inMemory struct {
	mu       sync.RWMutex
	settings map[string]string
	clients  []*Client
	projects []*Project
	invoices []*Invoice
	events   []*CalendarEvent
	logs     []*AutomationLog
	roi      map[time.Time]*ROIMetric
	now      func() time.Time
}

// NewMemoryStore returns the in-process store,
// used by tests and by the service when no database is configured.
func NewMemoryStore() Store {
	return &inMemory{now: time.Now}
}

func (m *inMemory) GetSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		res[k] = v
	}
	return res, nil
}

func (m *inMemory) PutSettings(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		// create on first use
		m.settings = make(map[string]string)
	}
	for k, v := range values {
		m.settings[k] = v
	}
	return nil
}

func (m *inMemory) ListClients(_ context.Context, f ClientFilter) ([]*Client, error) {
	status := ClientStatus(FilterStatus(f.Status))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []*Client
	for i := len(m.clients) - 1; i >= 0; i-- {
		c := m.clients[i]
		if status != "" && c.Status != status {
			continue
		}
		res = append(res, clone(c))
		if f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res, nil
}

func (m *inMemory) SearchClients(_ context.Context, query string, limit int) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []*Client
	for _, c := range m.clients {
		if !containsFold(c.Name, query) && !containsFold(c.Company, query) && !containsFold(c.Email, query) {
			continue
		}
		res = append(res, clone(c))
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (m *inMemory) FindClientByName(_ context.Context, name string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if containsFold(c.Name, name) {
			return clone(c), nil
		}
	}
	return nil, errors.WithStack(ErrNotFound)
}

func (m *inMemory) GetClient(_ context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if c.ID == id {
			return clone(c), nil
		}
	}
	return nil, errors.WithStack(ErrNotFound)
}

func (m *inMemory) CreateClient(_ context.Context, c *Client) (*Client, error) {
	if c.Name == "" {
		return nil, errors.New("client name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := clone(c)
	n.ID = uuid.NewString()
	if n.Status == "" {
		n.Status = ClientLead
	}
	n.CreatedAt = m.now()
	n.UpdatedAt = n.CreatedAt
	m.clients = append(m.clients, n)
	return clone(n), nil
}

func (m *inMemory) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = slices.DeleteFunc(m.clients, func(c *Client) bool { return c.ID == id })
	return nil
}

func (m *inMemory) ListProjects(_ context.Context, f ProjectFilter) ([]*Project, error) {
	status := ProjectStatus(FilterStatus(f.Status))

	m.mu.RLock()
	var res []*Project
	for i := len(m.projects) - 1; i >= 0; i-- {
		p := m.projects[i]
		if status != "" && p.Status != status {
			continue
		}
		if f.ClientID != "" && p.ClientID != f.ClientID {
			continue
		}
		res = append(res, clone(p))
	}
	m.mu.RUnlock()

	if f.ByHealth {
		slices.SortStableFunc(res, func(a, b *Project) int { return a.HealthScore - b.HealthScore })
	}
	return limit(res, f.Limit), nil
}

func (m *inMemory) CreateProject(_ context.Context, p *Project) (*Project, error) {
	if p.Name == "" {
		return nil, errors.New("project name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.newProject(p)
	m.projects = append(m.projects, n)
	return clone(n), nil
}

func (m *inMemory) newProject(p *Project) *Project {
	n := clone(p)
	n.ID = uuid.NewString()
	if n.Status == "" {
		n.Status = ProjectPlanning
	}
	n.CreatedAt = m.now()
	n.UpdatedAt = n.CreatedAt
	return n
}

func (m *inMemory) UpsertProjectByClickUpID(ctx context.Context, p *Project) (bool, error) {
	if p.ClickUpTaskID == "" {
		return false, errors.New("clickup task ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.projects {
		if existing.ClickUpTaskID == p.ClickUpTaskID {
			existing.Name = p.Name
			existing.Status = p.Status
			existing.HealthScore = p.HealthScore
			existing.Notes = p.Notes
			existing.StartDate = p.StartDate
			existing.DueDate = p.DueDate
			existing.UpdatedAt = m.now()
			return false, nil
		}
	}
	m.projects = append(m.projects, m.newProject(p))
	logger.ContextKV(ctx, xlog.DEBUG, "created", "project", "clickup_task_id", p.ClickUpTaskID)
	return true, nil
}

func (m *inMemory) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = slices.DeleteFunc(m.projects, func(p *Project) bool { return p.ID == id })
	return nil
}

func (m *inMemory) ListInvoices(_ context.Context, f InvoiceFilter) ([]*Invoice, error) {
	status := InvoiceStatus(FilterStatus(f.Status))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []*Invoice
	for _, inv := range m.invoices {
		if status != "" && inv.Status != status {
			continue
		}
		if f.ClientID != "" && inv.ClientID != f.ClientID {
			continue
		}
		n := clone(inv)
		for _, c := range m.clients {
			if c.ID == inv.ClientID {
				n.Client = &ClientRef{Name: c.Name, Email: c.Email}
				break
			}
		}
		res = append(res, n)
	}
	slices.SortStableFunc(res, func(a, b *Invoice) int { return a.DueDate.Compare(b.DueDate) })
	return limit(res, f.Limit), nil
}

func (m *inMemory) CreateInvoice(_ context.Context, inv *Invoice) (*Invoice, error) {
	if inv.InvoiceNumber == "" {
		return nil, errors.New("invoice number is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := clone(inv)
	n.ID = uuid.NewString()
	n.Client = nil
	if n.Status == "" {
		n.Status = InvoiceDraft
	}
	n.CreatedAt = m.now()
	n.UpdatedAt = n.CreatedAt
	m.invoices = append(m.invoices, n)
	return clone(n), nil
}

func (m *inMemory) DeleteInvoice(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = slices.DeleteFunc(m.invoices, func(i *Invoice) bool { return i.ID == id })
	return nil
}

func (m *inMemory) ListEvents(_ context.Context, f EventFilter) ([]*CalendarEvent, error) {
	m.mu.RLock()
	var res []*CalendarEvent
	for _, e := range m.events {
		if !f.From.IsZero() && e.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.StartTime.After(f.To) {
			continue
		}
		if f.Title != "" && !containsFold(e.Title, f.Title) {
			continue
		}
		res = append(res, clone(e))
	}
	m.mu.RUnlock()

	slices.SortStableFunc(res, func(a, b *CalendarEvent) int { return a.StartTime.Compare(b.StartTime) })
	return limit(res, f.Limit), nil
}

func (m *inMemory) GetEvent(_ context.Context, id string) (*CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.ID == id {
			return clone(e), nil
		}
	}
	return nil, errors.WithStack(ErrNotFound)
}

func (m *inMemory) CreateEvent(_ context.Context, e *CalendarEvent) (*CalendarEvent, error) {
	if e.Title == "" {
		return nil, errors.New("event title is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.newEvent(e)
	m.events = append(m.events, n)
	return clone(n), nil
}

func (m *inMemory) newEvent(e *CalendarEvent) *CalendarEvent {
	n := clone(e)
	n.ID = uuid.NewString()
	n.Attendees = slices.Clone(e.Attendees)
	n.CreatedAt = m.now()
	return n
}

func (m *inMemory) UpsertEventByGoogleID(_ context.Context, e *CalendarEvent) (bool, error) {
	if e.GoogleEventID == "" {
		return false, errors.New("google event ID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.events {
		if existing.GoogleEventID == e.GoogleEventID {
			existing.Title = e.Title
			existing.Description = e.Description
			existing.StartTime = e.StartTime
			existing.EndTime = e.EndTime
			existing.Location = e.Location
			existing.Attendees = slices.Clone(e.Attendees)
			return false, nil
		}
	}
	m.events = append(m.events, m.newEvent(e))
	return true, nil
}

func (m *inMemory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = slices.DeleteFunc(m.events, func(e *CalendarEvent) bool { return e.ID == id })
	return nil
}

func (m *inMemory) AddAutomationLog(_ context.Context, l *AutomationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := clone(l)
	n.ID = uuid.NewString()
	n.CreatedAt = m.now()
	m.logs = append(m.logs, n)
	return nil
}

func (m *inMemory) RecordROI(_ context.Context, date time.Time, tasks, events int, hours float64) error {
	day := Today(date)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roi == nil {
		m.roi = make(map[time.Time]*ROIMetric)
	}
	r := m.roi[day]
	if r == nil {
		r = &ROIMetric{MetricDate: day}
		m.roi[day] = r
	}
	r.TasksSynced += tasks
	r.EventsSynced += events
	r.TimeSavedHours += hours
	return nil
}

func (m *inMemory) GetROI(_ context.Context, date time.Time) (*ROIMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.roi[Today(date)]
	if r == nil {
		return nil, errors.WithStack(ErrNotFound)
	}
	return clone(r), nil
}

func (m *inMemory) Stats(_ context.Context, now time.Time) (*DashboardStats, error) {
	today := Today(now)
	upcoming := now.Add(UpcomingWindow)
	roiFrom := Today(now.Add(-ROIWindow))

	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &DashboardStats{
		TotalClients: len(m.clients),
	}
	for _, c := range m.clients {
		switch c.Status {
		case ClientLead, ClientQualified:
			s.ActiveLeads++
			s.PipelineValue = s.PipelineValue.Add(c.EstimatedValue)
		case ClientProposal:
			s.PipelineValue = s.PipelineValue.Add(c.EstimatedValue)
		}
	}

	health := 0
	for _, p := range m.projects {
		if p.Status != ProjectActive {
			continue
		}
		s.ActiveProjects++
		health += p.HealthScore
		if p.IsOverdue(today) {
			s.OverdueProjects++
		}
	}
	if s.ActiveProjects > 0 {
		s.AvgHealth = int(math.Round(float64(health) / float64(s.ActiveProjects)))
	}

	for _, inv := range m.invoices {
		if inv.IsOverdue(today) {
			s.OverdueInvoices++
			s.OverdueAmount = s.OverdueAmount.Add(inv.Amount)
		}
	}

	for _, e := range m.events {
		if !e.StartTime.Before(now) && !e.StartTime.After(upcoming) {
			s.UpcomingMeetings++
		}
	}

	for day, r := range m.roi {
		if !day.Before(roiFrom) {
			s.MonthlyTimeSaved += r.TimeSavedHours
		}
	}
	return s, nil
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func limit[T any](list []T, n int) []T {
	if n > 0 && len(list) > n {
		return list[:n]
	}
	return list
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
