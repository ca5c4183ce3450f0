// Package syncer imports the ClickUp tasks as projects,
// and the Google Calendar events as local events.
package syncer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/integrations/clickup"
	"github.com/effective-security/opsdash/integrations/google"
	"github.com/effective-security/opsdash/pkg/metricskey"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash", "syncer")

// Sync sources
const (
	SourceClickUp  = "clickup"
	SourceCalendar = "calendar"
)

// Time saved per synced record, in hours.
const (
	HoursPerTask  = 0.05
	HoursPerEvent = 0.02
)

// Calendar sync window
const (
	EventsWindow = 30 * 24 * time.Hour
	MaxEvents    = 50
)

// ErrNotConfigured is returned when the source is not wired.
var ErrNotConfigured = errors.New("sync source is not configured")

// TaskSource returns the tasks of all lists of the space.
type TaskSource interface {
	GetTasks(ctx context.Context, listID string) ([]*clickup.Task, error)
}

// EventSource returns the calendar events in the window.
type EventSource interface {
	ListEvents(ctx context.Context, from, to time.Time, maxResults int64) ([]*google.Event, error)
}

// Result of a sync run.
type Result struct {
	Synced  int    `json:"synced"`
	Errors  int    `json:"errors"`
	Message string `json:"message"`
}

// Syncer imports the external records into the store.
type Syncer struct {
	store  store.Store
	tasks  TaskSource
	events EventSource
	now    func() time.Time
}

// Option configures the Syncer.
type Option func(*Syncer)

// WithClock sets the current time provider.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New returns the syncer, tasks and events are optional.
func New(st store.Store, tasks TaskSource, events EventSource, opts ...Option) *Syncer {
	s := &Syncer{
		store:  st,
		tasks:  tasks,
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncClickUp upserts a project for every task.
// A failed fetch returns an error, a failed upsert is counted and the run continues.
func (s *Syncer) SyncClickUp(ctx context.Context) (*Result, error) {
	if s.tasks == nil {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	started := time.Now()
	defer metricskey.PerfSync.MeasureSince(started, SourceClickUp)

	tasks, err := s.tasks.GetTasks(ctx, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &Result{}
	for _, t := range tasks {
		p := &store.Project{
			Name:          t.Name,
			ClickUpTaskID: t.ID,
			Status:        MapStatus(t.Status.Status),
			HealthScore:   Health(t, now),
			Notes:         t.Description,
			StartDate:     dateOf(t.Start()),
			DueDate:       dateOf(t.Due()),
		}
		if _, err = s.store.UpsertProjectByClickUpID(ctx, p); err != nil {
			res.Errors++
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "upsert_project",
				"task", t.ID,
				"err", err.Error(),
			)
			continue
		}
		res.Synced++
	}
	res.Message = fmt.Sprintf("Synced %d tasks from ClickUp", res.Synced)

	s.record(ctx, SourceClickUp, store.ActionClickUpSync,
		fmt.Sprintf("Synced %d tasks, %d errors", res.Synced, res.Errors), res)
	if err = s.store.RecordROI(ctx, now, res.Synced, 0, float64(res.Synced)*HoursPerTask); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "record_roi", "source", SourceClickUp, "err", err.Error())
	}
	return res, nil
}

// SyncCalendar upserts the events of the next 30 days.
func (s *Syncer) SyncCalendar(ctx context.Context) (*Result, error) {
	if s.events == nil {
		return nil, errors.WithStack(ErrNotConfigured)
	}
	started := time.Now()
	defer metricskey.PerfSync.MeasureSince(started, SourceCalendar)

	now := s.now()
	events, err := s.events.ListEvents(ctx, now, now.Add(EventsWindow), MaxEvents)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, e := range events {
		_, err = s.store.UpsertEventByGoogleID(ctx, &store.CalendarEvent{
			GoogleEventID: e.ID,
			Title:         e.Summary,
			Description:   e.Description,
			StartTime:     e.Start,
			EndTime:       e.End,
			Location:      e.Location,
			Attendees:     e.Attendees,
		})
		if err != nil {
			res.Errors++
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "upsert_event",
				"event", e.ID,
				"err", err.Error(),
			)
			continue
		}
		res.Synced++
	}
	res.Message = fmt.Sprintf("Synced %d events from Google Calendar", res.Synced)

	s.record(ctx, SourceCalendar, store.ActionCalendarSync,
		fmt.Sprintf("Synced %d events, %d errors", res.Synced, res.Errors), res)
	if err = s.store.RecordROI(ctx, now, 0, res.Synced, float64(res.Synced)*HoursPerEvent); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "record_roi", "source", SourceCalendar, "err", err.Error())
	}
	return res, nil
}

func (s *Syncer) record(ctx context.Context, source, action, details string, res *Result) {
	metricskey.StatsSyncRecords.IncrCounter(float64(res.Synced), source)
	err := s.store.AddAutomationLog(ctx, &store.AutomationLog{
		ActionType: action,
		Details:    details,
		Success:    res.Errors == 0,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "automation_log", "source", source, "err", err.Error())
	}
	logger.ContextKV(ctx, xlog.INFO,
		"status", "synced",
		"source", source,
		"synced", res.Synced,
		"errors", res.Errors,
	)
}

var statusMap = map[string]store.ProjectStatus{
	"to do":       store.ProjectPlanning,
	"in progress": store.ProjectActive,
	"blocked":     store.ProjectOnHold,
	"review":      store.ProjectActive,
	"complete":    store.ProjectCompleted,
	"closed":      store.ProjectCompleted,
}

// MapStatus returns the project status of the ClickUp status.
// An empty status is "to do", unknown ones are active.
func MapStatus(status string) store.ProjectStatus {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return store.ProjectPlanning
	}
	if s, ok := statusMap[status]; ok {
		return s
	}
	return store.ProjectActive
}

const day = 24 * time.Hour

// Health scores the task: overdue tasks lose 5 points per day up to 50,
// tasks due within 3 days lose 10, blocked tasks lose 30.
func Health(t *clickup.Task, now time.Time) int {
	score := store.MaxHealthScore
	if due := t.Due(); due != nil {
		daysUntilDue := int(math.Ceil(float64(due.Sub(now)) / float64(day)))
		switch {
		case daysUntilDue < 0:
			score -= min(-daysUntilDue*5, 50)
		case daysUntilDue < 3:
			score -= 10
		}
	}
	if strings.EqualFold(t.Status.Status, "blocked") {
		score -= 30
	}
	return max(score, 0)
}

// dateOf returns the UTC date of the time.
func dateOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := store.Today(t.UTC())
	return &d
}
