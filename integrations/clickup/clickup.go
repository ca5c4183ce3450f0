// Package clickup is a client for the ClickUp v2 REST API.
package clickup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	gocu "github.com/raksul/go-clickup/clickup"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/integrations", "clickup")

const (
	// DefaultBaseURL is the ClickUp API endpoint.
	DefaultBaseURL = "https://api.clickup.com/api/v2/"
	// DefaultTimeout is the per request timeout.
	DefaultTimeout = 30 * time.Second

	fanOutLimit = 8
)

// ErrNotConfigured is returned before any request when the token or space is missing.
var ErrNotConfigured = errors.New("ClickUp credentials not configured")

// APIError is an error reported by the ClickUp API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return "clickup: " + e.Message
}

// Credentials returns the token and space ID, resolved on every call.
type Credentials func(ctx context.Context) (token, spaceID string)

// StaticCredentials returns fixed credentials.
func StaticCredentials(token, spaceID string) Credentials {
	return func(context.Context) (string, string) {
		return token, spaceID
	}
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/") + "/"
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// Client is the ClickUp API client.
// The SDK client is built per call, as the token may change between calls.
type Client struct {
	creds   Credentials
	baseURL string
	http    *http.Client
}

// New returns the client.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:   creds,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status is the workflow status of a task.
type Status struct {
	Status string `json:"status"`
	Color  string `json:"color,omitempty"`
}

// Priority of a task.
type Priority struct {
	Priority string `json:"priority"`
}

// User is a task assignee.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Task is a ClickUp task.
// Dates are Unix milliseconds encoded as strings, empty when not set.
type Task struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Priority    *Priority `json:"priority,omitempty"`
	DueDate     string    `json:"due_date,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	Assignees   []User    `json:"assignees,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// Due returns the due date, or nil.
func (t *Task) Due() *time.Time {
	return parseMillis(t.DueDate)
}

// Start returns the start date, or nil.
func (t *Task) Start() *time.Time {
	return parseMillis(t.StartDate)
}

// StatusName returns the status, or "no status".
func (t *Task) StatusName() string {
	if t.Status.Status == "" {
		return "no status"
	}
	return t.Status.Status
}

func parseMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

// List is a ClickUp list. Lists inside a folder are named "Folder > List".
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewTask is the create task request.
type NewTask struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	// DueDate is Unix milliseconds.
	DueDate int64  `json:"due_date,omitempty"`
	Status  string `json:"status,omitempty"`
}

// IsConfigured returns true when the token and space are set.
func (c *Client) IsConfigured(ctx context.Context) bool {
	token, spaceID := c.creds(ctx)
	return token != "" && spaceID != ""
}

func (c *Client) sdk(token string) (*gocu.Client, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid clickup url")
	}
	cl := gocu.NewClient(c.http, token)
	cl.BaseURL = base
	return cl, nil
}

// GetLists returns the folderless lists of the space followed by the lists of each folder.
// A failed listing degrades to the lists that could be read.
func (c *Client) GetLists(ctx context.Context) ([]List, error) {
	token, spaceID := c.creds(ctx)
	if token == "" || spaceID == "" {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	cl, err := c.sdk(token)
	if err != nil {
		return nil, err
	}

	lists := []List{}
	folderless, _, err := cl.Lists.GetFolderlessLists(ctx, spaceID, false)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "folderless_lists", "err", apiError(ctx, err).Error())
	} else {
		for _, l := range folderless {
			lists = append(lists, List{ID: l.ID, Name: l.Name})
		}
	}

	folders, _, err := cl.Folders.GetFolders(ctx, spaceID, false)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "folders", "err", apiError(ctx, err).Error())
		return lists, nil
	}

	perFolder := make([][]List, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for i, f := range folders {
		g.Go(func() error {
			res, _, err := cl.Lists.GetLists(gctx, f.ID, false)
			if err != nil {
				logger.ContextKV(gctx, xlog.WARNING, "reason", "folder_lists", "folder", f.ID, "err", apiError(gctx, err).Error())
				return nil
			}
			for _, l := range res {
				perFolder[i] = append(perFolder[i], List{ID: l.ID, Name: f.Name + " > " + l.Name})
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, fl := range perFolder {
		lists = append(lists, fl...)
	}
	return lists, nil
}

// GetTasks returns the open tasks of the list, including subtasks.
// With empty listID, tasks of every list in the space are returned,
// a list that fails to load contributes no tasks.
func (c *Client) GetTasks(ctx context.Context, listID string) ([]*Task, error) {
	token, spaceID := c.creds(ctx)
	if token == "" || spaceID == "" {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	cl, err := c.sdk(token)
	if err != nil {
		return nil, err
	}

	if listID != "" {
		return listTasks(ctx, cl, listID)
	}

	lists, err := c.GetLists(ctx)
	if err != nil {
		return nil, err
	}

	perList := make([][]*Task, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for i, l := range lists {
		g.Go(func() error {
			tasks, err := listTasks(gctx, cl, l.ID)
			if err != nil {
				logger.ContextKV(gctx, xlog.ERROR, "reason", "list_tasks", "list", l.ID, "err", err.Error())
				return nil
			}
			perList[i] = tasks
			return nil
		})
	}
	_ = g.Wait()

	tasks := []*Task{}
	for _, tl := range perList {
		tasks = append(tasks, tl...)
	}
	return tasks, nil
}

func listTasks(ctx context.Context, cl *gocu.Client, listID string) ([]*Task, error) {
	res, _, err := cl.Tasks.GetTasks(ctx, listID, &gocu.GetTasksOptions{
		Subtasks:      true,
		IncludeClosed: false,
	})
	if err != nil {
		return nil, apiError(ctx, err)
	}
	tasks := make([]*Task, 0, len(res))
	for i := range res {
		t, err := toTask(&res[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CreateTask creates the task in the list.
func (c *Client) CreateTask(ctx context.Context, listID string, t *NewTask) (*Task, error) {
	token, _ := c.creds(ctx)
	if token == "" {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	cl, err := c.sdk(token)
	if err != nil {
		return nil, err
	}

	req := &gocu.TaskRequest{
		Name:        t.Name,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      t.Status,
	}
	if t.DueDate > 0 {
		req.DueDate = gocu.NewDate(time.UnixMilli(t.DueDate))
	}

	res, _, err := cl.Tasks.CreateTask(ctx, listID, req)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return toTask(res)
}

// Ping checks the token.
func (c *Client) Ping(ctx context.Context) error {
	token, _ := c.creds(ctx)
	if token == "" {
		return errors.WithStack(ErrNotConfigured)
	}
	cl, err := c.sdk(token)
	if err != nil {
		return err
	}
	_, _, err = cl.Authorization.GetAuthorizedUser(ctx)
	if err != nil {
		return apiError(ctx, err)
	}
	return nil
}

// toTask maps the SDK task by its wire form,
// dates come back as Unix milliseconds either quoted or bare.
func toTask(t *gocu.Task) (*Task, error) {
	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "clickup: failed to encode task")
	}
	doc := gjson.ParseBytes(js)

	res := &Task{
		ID:          doc.Get("id").String(),
		Name:        doc.Get("name").String(),
		Description: doc.Get("description").String(),
		Status: Status{
			Status: doc.Get("status.status").String(),
			Color:  doc.Get("status.color").String(),
		},
		DueDate:   doc.Get("due_date").String(),
		StartDate: doc.Get("start_date").String(),
		URL:       doc.Get("url").String(),
	}
	if p := doc.Get("priority.priority").String(); p != "" {
		res.Priority = &Priority{Priority: p}
	}
	for _, u := range doc.Get("assignees").Array() {
		res.Assignees = append(res.Assignees, User{
			Username: u.Get("username").String(),
			Email:    u.Get("email").String(),
		})
	}
	return res, nil
}

// apiError converts an SDK error response to APIError.
func apiError(ctx context.Context, err error) error {
	var er *gocu.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return errors.Wrap(err, "clickup")
	}
	msg := er.Err
	if msg == "" {
		msg = er.Response.Status
	}
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", er.Response.StatusCode,
		"err", msg,
	)
	return errors.WithStack(&APIError{StatusCode: er.Response.StatusCode, Message: msg})
}
