package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/syncer"
	"github.com/effective-security/xlog"
)

// Gmail routes
const (
	InboxSize = 20
	// ReminderTypeInvoices sends a reminder for every overdue invoice.
	ReminderTypeInvoices = "invoice_reminders"
	// HoursPerEmail is the time saved per reminder, in hours.
	HoursPerEmail = 0.1
)

var (
	errTaskRequired     = errors.New("Name and List ID are required")
	errInvalidSend      = errors.New("Invalid request. Provide type=invoice_reminders or to/subject/body")
	errOAuthUnavailable = errors.New("Google sign in is not configured")
)

//go:embed reminder.tmpl
var reminderText string

var reminderTemplate = template.Must(template.New("reminder").
	Funcs(sprig.HtmlFuncMap()).
	Parse(reminderText))

type listsResponse struct {
	Success bool           `json:"success"`
	Lists   []clickup.List `json:"lists"`
}

type tasksResponse struct {
	Success bool            `json:"success"`
	Tasks   []*clickup.Task `json:"tasks"`
	Count   int             `json:"count"`
}

type taskResponse struct {
	Success bool          `json:"success"`
	Task    *clickup.Task `json:"task"`
}

type taskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	ListID      string `json:"list_id"`
	Status      string `json:"status"`
}

func (s *Server) clickUpLists(w http.ResponseWriter, r *http.Request) {
	if s.Tasks == nil {
		writeError(w, r, http.StatusInternalServerError, clickup.ErrNotConfigured)
		return
	}
	lists, err := s.Tasks.GetLists(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, listsResponse{Success: true, Lists: lists})
}

// clickUpTasks returns the tasks of the list_id, or of the whole space.
func (s *Server) clickUpTasks(w http.ResponseWriter, r *http.Request) {
	if s.Tasks == nil {
		writeError(w, r, http.StatusBadRequest, clickup.ErrNotConfigured)
		return
	}
	tasks, err := s.Tasks.GetTasks(r.Context(), r.URL.Query().Get("list_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if tasks == nil {
		tasks = []*clickup.Task{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{Success: true, Tasks: tasks, Count: len(tasks)})
}

// parseDue accepts a date, or a date and time in RFC 3339.
func parseDue(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, errors.Errorf("invalid due_date: %q", value)
	}
	return t.UnixMilli(), nil
}

func (s *Server) clickUpCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.ListID == "" {
		writeError(w, r, http.StatusBadRequest, errTaskRequired)
		return
	}
	due, err := parseDue(req.DueDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if s.Tasks == nil {
		writeError(w, r, http.StatusInternalServerError, clickup.ErrNotConfigured)
		return
	}

	task, err := s.Tasks.CreateTask(r.Context(), req.ListID, &clickup.NewTask{
		Name:        req.Name,
		Description: req.Description,
		DueDate:     due,
		Status:      req.Status,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: task})
}

func notAuthenticated(w http.ResponseWriter) {
	authenticated := false
	writeJSON(w, http.StatusUnauthorized, errorResponse{
		Error:         google.ErrNotAuthenticated.Error(),
		Authenticated: &authenticated,
	})
}

type inboxResponse struct {
	Success       bool            `json:"success"`
	Authenticated bool            `json:"authenticated"`
	Messages      []*google.Email `json:"messages"`
	Count         int             `json:"count"`
}

func (s *Server) gmailInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.Mail == nil || !s.Mail.IsAuthenticated(ctx) {
		notAuthenticated(w)
		return
	}
	list, err := s.Mail.ListMessages(ctx, google.ListOptions{
		MaxResults: InboxSize,
		Query:      r.URL.Query().Get("q"),
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if list == nil {
		list = []*google.Email{}
	}
	writeJSON(w, http.StatusOK, inboxResponse{
		Success:       true,
		Authenticated: true,
		Messages:      list,
		Count:         len(list),
	})
}

type sendRequest struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Content is accepted as an alias of Body.
	Content string `json:"content"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message"`
}

type remindersResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

func (s *Server) gmailSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	if s.Mail == nil || !s.Mail.IsAuthenticated(ctx) {
		notAuthenticated(w)
		return
	}

	if req.Type == ReminderTypeInvoices {
		s.sendReminders(w, r)
		return
	}

	body := req.Body
	if body == "" {
		body = req.Content
	}
	if req.To == "" || req.Subject == "" || body == "" {
		writeError(w, r, http.StatusBadRequest, errInvalidSend)
		return
	}

	id, err := s.Mail.Send(ctx, req.To, req.Subject, body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.audit(r, store.ActionEmailSent, "Sent email to "+req.To+": "+req.Subject, true)
	writeJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		MessageID: id,
		Message:   "Email sent successfully",
	})
}

type reminderData struct {
	Name        string
	Number      string
	Amount      string
	DaysOverdue int
	DueDate     time.Time
	Signature   string
}

// sendReminders mails every overdue invoice with a client email.
func (s *Server) sendReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.Store.ListInvoices(ctx, store.InvoiceFilter{Status: string(store.InvoiceOverdue)})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if len(list) == 0 {
		writeJSON(w, http.StatusOK, remindersResponse{
			Success: true,
			Message: "No overdue invoices to send reminders for",
		})
		return
	}

	now := s.now()
	res := remindersResponse{Success: true}
	for _, inv := range list {
		if inv.Client == nil || inv.Client.Email == "" {
			continue
		}
		amount, _ := inv.Amount.Float64()
		data := reminderData{
			Name:        inv.Client.Name,
			Number:      inv.InvoiceNumber,
			Amount:      humanize.FormatFloat("#,###.##", amount),
			DaysOverdue: int(math.Ceil(now.Sub(inv.DueDate).Hours() / 24)),
			DueDate:     inv.DueDate,
		}
		var buf bytes.Buffer
		if err = reminderTemplate.Execute(&buf, data); err != nil {
			writeError(w, r, http.StatusInternalServerError, errors.Wrap(err, "failed to render reminder"))
			return
		}

		_, err = s.Mail.Send(ctx, inv.Client.Email, "Payment Reminder: Invoice "+inv.InvoiceNumber, buf.String())
		if err != nil {
			res.Errors++
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "reminder",
				"invoice", inv.InvoiceNumber,
				"err", err.Error(),
			)
			s.audit(r, store.ActionInvoiceReminder,
				"Failed to send reminder for "+inv.InvoiceNumber+": "+err.Error(), false)
			continue
		}
		res.Sent++
		s.audit(r, store.ActionInvoiceReminder,
			"Sent reminder for "+inv.InvoiceNumber+" to "+inv.Client.Email, true)
	}

	if res.Sent > 0 {
		if err = s.Store.RecordROI(ctx, now, 0, 0, float64(res.Sent)*HoursPerEmail); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "record_roi", "err", err.Error())
		}
	}
	res.Message = "Sent " + humanize.Comma(int64(res.Sent)) + " invoice reminders"
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) audit(r *http.Request, action, details string, success bool) {
	err := s.Store.AddAutomationLog(r.Context(), &store.AutomationLog{
		ActionType: action,
		Details:    details,
		Success:    success,
	})
	if err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR,
			"reason", "automation_log",
			"action", action,
			"err", err.Error(),
		)
	}
}

type authResponse struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	AuthURL       string `json:"authUrl,omitempty"`
}

// oauthState is echoed back by the consent screen.
const oauthState = "opsdash"

func (s *Server) googleAuth(w http.ResponseWriter, r *http.Request) {
	if s.OAuth == nil {
		writeError(w, r, http.StatusInternalServerError, errOAuthUnavailable)
		return
	}
	if s.OAuth.IsAuthenticated(r.Context()) {
		writeJSON(w, http.StatusOK, authResponse{Success: true, Authenticated: true})
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, AuthURL: s.OAuth.AuthURL(oauthState)})
}

// googleCallback exchanges the code and redirects to the mail page.
func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect := func(key, value string) {
		target := strings.TrimSuffix(s.PublicURL, "/") + "/email?" + key + "=" + url.QueryEscape(value)
		http.Redirect(w, r, target, http.StatusFound)
	}

	if e := q.Get("error"); e != "" {
		redirect("error", e)
		return
	}
	code := q.Get("code")
	if code == "" {
		redirect("error", "no_code")
		return
	}
	if s.OAuth == nil {
		redirect("error", errOAuthUnavailable.Error())
		return
	}
	if err := s.OAuth.Exchange(r.Context(), code); err != nil {
		logger.ContextKV(r.Context(), xlog.ERROR, "reason", "oauth_exchange", "err", err.Error())
		redirect("error", err.Error())
		return
	}
	logger.ContextKV(r.Context(), xlog.NOTICE, "status", "signed_in")
	redirect("success", "true")
}

type syncResponse struct {
	Success bool `json:"success"`
	*syncer.Result
}

func (s *Server) syncClickUp(w http.ResponseWriter, r *http.Request) {
	if s.Syncer == nil {
		writeError(w, r, http.StatusBadRequest, syncer.ErrNotConfigured)
		return
	}
	res, err := s.Syncer.SyncClickUp(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Result: res})
}

func (s *Server) syncCalendar(w http.ResponseWriter, r *http.Request) {
	if s.Syncer == nil {
		writeError(w, r, http.StatusBadRequest, syncer.ErrNotConfigured)
		return
	}
	res, err := s.Syncer.SyncCalendar(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Result: res})
}
