package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
	"github.com/shopspring/decimal"
)

// MaxEventsListed limits the events returned by the list route.
const MaxEventsListed = 100

var (
	errClientNameRequired  = errors.New("Client name is required")
	errProjectNameRequired = errors.New("Project name is required")
	errInvoiceRequired     = errors.New("invoice_number, amount, issue_date, and due_date are required")
	errEventRequired       = errors.New("Summary, Start Time, and End Time are required")
)

func deleteStatus(err error) int {
	if store.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// parseDate parses an optional YYYY-MM-DD value.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, errors.Errorf("invalid %s: %q, expected YYYY-MM-DD", field, value)
	}
	return &t, nil
}

type clientRequest struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Company        string          `json:"company"`
	Status         string          `json:"status"`
	Source         string          `json:"source"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Notes          string          `json:"notes"`
}

type clientsResponse struct {
	Success bool            `json:"success"`
	Clients []*store.Client `json:"clients"`
	Count   int             `json:"count"`
}

type clientResponse struct {
	Success bool          `json:"success"`
	Client  *store.Client `json:"client"`
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.ListClients(r.Context(), store.ClientFilter{Status: r.URL.Query().Get("status")})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Client{}
	}
	writeJSON(w, http.StatusOK, clientsResponse{Success: true, Clients: list, Count: len(list)})
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, errClientNameRequired)
		return
	}
	c, err := s.Store.CreateClient(r.Context(), &store.Client{
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Company:        req.Company,
		Status:         store.ClientStatus(req.Status),
		Source:         req.Source,
		EstimatedValue: req.EstimatedValue,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, clientResponse{Success: true, Client: c})
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteClient(r.Context(), id); err != nil {
		writeError(w, r, deleteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type projectRequest struct {
	Name      string          `json:"name"`
	ClientID  string          `json:"client_id"`
	Status    string          `json:"status"`
	Budget    decimal.Decimal `json:"budget"`
	StartDate string          `json:"start_date"`
	DueDate   string          `json:"due_date"`
	Notes     string          `json:"notes"`
}

type projectsResponse struct {
	Success  bool             `json:"success"`
	Projects []*store.Project `json:"projects"`
	Count    int              `json:"count"`
}

type projectResponse struct {
	Success bool           `json:"success"`
	Project *store.Project `json:"project"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Store.ListProjects(r.Context(), store.ProjectFilter{
		Status:   q.Get("status"),
		ClientID: q.Get("client_id"),
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projectsResponse{Success: true, Projects: list, Count: len(list)})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, errProjectNameRequired)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	p, err := s.Store.CreateProject(r.Context(), &store.Project{
		Name:        req.Name,
		ClientID:    req.ClientID,
		Status:      store.ProjectStatus(req.Status),
		Budget:      req.Budget,
		StartDate:   start,
		DueDate:     due,
		Notes:       req.Notes,
		HealthScore: store.MaxHealthScore,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Success: true, Project: p})
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteProject(r.Context(), id); err != nil {
		writeError(w, r, deleteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type invoiceRequest struct {
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      string          `json:"client_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	IssueDate     string          `json:"issue_date"`
	DueDate       string          `json:"due_date"`
}

type invoicesResponse struct {
	Success      bool             `json:"success"`
	Invoices     []*store.Invoice `json:"invoices"`
	Count        int              `json:"count"`
	TotalOverdue decimal.Decimal  `json:"totalOverdue"`
}

type invoiceResponse struct {
	Success bool           `json:"success"`
	Invoice *store.Invoice `json:"invoice"`
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Store.ListInvoices(r.Context(), store.InvoiceFilter{
		Status:   q.Get("status"),
		ClientID: q.Get("client_id"),
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Invoice{}
	}

	total := decimal.Zero
	for _, inv := range list {
		if inv.Status == store.InvoiceOverdue {
			total = total.Add(inv.Amount)
		}
	}
	writeJSON(w, http.StatusOK, invoicesResponse{
		Success:      true,
		Invoices:     list,
		Count:        len(list),
		TotalOverdue: total,
	})
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.InvoiceNumber == "" || req.Amount.IsZero() || req.IssueDate == "" || req.DueDate == "" {
		writeError(w, r, http.StatusBadRequest, errInvoiceRequired)
		return
	}
	issue, err := parseDate("issue_date", req.IssueDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	inv, err := s.Store.CreateInvoice(r.Context(), &store.Invoice{
		InvoiceNumber: req.InvoiceNumber,
		ClientID:      req.ClientID,
		Amount:        req.Amount,
		Status:        store.InvoiceStatus(req.Status),
		IssueDate:     *issue,
		DueDate:       *due,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Success: true, Invoice: inv})
}

func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.Store.DeleteInvoice(r.Context(), id); err != nil {
		writeError(w, r, deleteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

type eventRequest struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location"`
	Attendees   []string  `json:"attendees"`
}

type eventsResponse struct {
	Success bool                   `json:"success"`
	Events  []*store.CalendarEvent `json:"events"`
}

type eventResponse struct {
	Success bool                 `json:"success"`
	Event   *store.CalendarEvent `json:"event"`
}

// listEvents returns the upcoming events, earliest first.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.ListEvents(r.Context(), store.EventFilter{
		From:  s.now(),
		Limit: MaxEventsListed,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.CalendarEvent{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Success: true, Events: list})
}

// createEvent stores the event, and mirrors it to Google Calendar when configured.
func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Summary) == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, r, http.StatusBadRequest, errEventRequired)
		return
	}

	e := &store.CalendarEvent{
		Title:       req.Summary,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    req.Location,
		Attendees:   req.Attendees,
	}
	if s.Calendar != nil && s.Calendar.IsConfigured(ctx) {
		ge, err := s.Calendar.CreateEvent(ctx, &google.Event{
			Summary:     e.Title,
			Description: e.Description,
			Location:    e.Location,
			Start:       e.StartTime,
			End:         e.EndTime,
			Attendees:   e.Attendees,
		})
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "calendar_create",
				"title", e.Title,
				"err", err.Error(),
			)
		} else {
			e.GoogleEventID = ge.ID
		}
	}

	created, err := s.Store.CreateEvent(ctx, e)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Success: true, Event: created})
}

// deleteEvent removes the event, and its Google Calendar copy.
func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	e, err := s.Store.GetEvent(ctx, id)
	if err != nil {
		writeError(w, r, deleteStatus(err), err)
		return
	}
	if e.GoogleEventID != "" && s.Calendar != nil {
		if err = s.Calendar.DeleteEvent(ctx, e.GoogleEventID); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "calendar_delete",
				"google_event_id", e.GoogleEventID,
				"err", err.Error(),
			)
		}
	}
	if err = s.Store.DeleteEvent(ctx, id); err != nil {
		writeError(w, r, deleteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}
