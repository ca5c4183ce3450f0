package pgstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/opsdash/store/pgstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcon "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func Test_Postgres(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := pgcon.Run(ctx, "postgres:16-alpine",
		pgcon.WithDatabase("opsdash"),
		pgcon.WithUsername("opsdash"),
		pgcon.WithPassword("opsdash"),
		pgcon.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	p, err := pgstore.Open(ctx, dsn, 4)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Migrate())
	// second run is a no-op
	require.NoError(t, p.Migrate())

	t.Run("settings", func(t *testing.T) {
		require.NoError(t, p.PutSettings(ctx, map[string]string{"ai_provider": "ollama", "openai_model": "gpt-4o"}))
		require.NoError(t, p.PutSettings(ctx, map[string]string{"ai_provider": "openai"}))
		s, err := p.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"ai_provider": "openai", "openai_model": "gpt-4o"}, s)
	})

	t.Run("clients_invoices", func(t *testing.T) {
		c, err := p.CreateClient(ctx, &store.Client{
			Name:           "John Smith",
			Company:        "Acme",
			Email:          "john@acme.test",
			EstimatedValue: decimal.NewFromInt(2500),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, store.ClientLead, c.Status)
		assert.Empty(t, c.Phone)

		found, err := p.FindClientByName(ctx, "JOHN")
		require.NoError(t, err)
		assert.Equal(t, c.ID, found.ID)

		_, err = p.FindClientByName(ctx, "nobody")
		assert.True(t, store.IsNotFound(err))

		list, err := p.SearchClients(ctx, "acme", 5)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		due := store.Today(time.Now()).AddDate(0, 0, 30)
		inv, err := p.CreateInvoice(ctx, &store.Invoice{
			InvoiceNumber: "INV-123456",
			ClientID:      c.ID,
			Amount:        decimal.RequireFromString("500.25"),
			DueDate:       due,
		})
		require.NoError(t, err)
		assert.Equal(t, store.InvoiceDraft, inv.Status)
		assert.Equal(t, due.Format("2006-01-02"), inv.DueDate.Format("2006-01-02"))

		invs, err := p.ListInvoices(ctx, store.InvoiceFilter{Status: "all"})
		require.NoError(t, err)
		require.Len(t, invs, 1)
		require.NotNil(t, invs[0].Client)
		assert.Equal(t, "John Smith", invs[0].Client.Name)
		assert.Equal(t, "500.25", invs[0].Amount.String())

		require.NoError(t, p.DeleteClient(ctx, c.ID))
		invs, err = p.ListInvoices(ctx, store.InvoiceFilter{})
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Nil(t, invs[0].Client)
		require.NoError(t, p.DeleteInvoice(ctx, inv.ID))
	})

	t.Run("projects", func(t *testing.T) {
		created, err := p.UpsertProjectByClickUpID(ctx, &store.Project{
			Name:          "Task",
			ClickUpTaskID: "cu-1",
			Status:        store.ProjectActive,
			HealthScore:   70,
		})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = p.UpsertProjectByClickUpID(ctx, &store.Project{
			Name:          "Task renamed",
			ClickUpTaskID: "cu-1",
			Status:        store.ProjectOnHold,
			HealthScore:   40,
		})
		require.NoError(t, err)
		assert.False(t, created)

		_, err = p.CreateProject(ctx, &store.Project{Name: "Local", HealthScore: store.MaxHealthScore})
		require.NoError(t, err)

		list, err := p.ListProjects(ctx, store.ProjectFilter{ByHealth: true})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Task renamed", list[0].Name)
		assert.Equal(t, "cu-1", list[0].ClickUpTaskID)
		assert.Equal(t, store.ProjectPlanning, list[1].Status)
	})

	t.Run("events", func(t *testing.T) {
		start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
		e, err := p.CreateEvent(ctx, &store.CalendarEvent{
			Title:     "Sync with John",
			StartTime: start,
			EndTime:   start.Add(time.Hour),
			Attendees: []string{"john@acme.test"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"john@acme.test"}, e.Attendees)

		created, err := p.UpsertEventByGoogleID(ctx, &store.CalendarEvent{
			GoogleEventID: "g-1",
			Title:         "Board",
			StartTime:     start.Add(time.Hour),
			EndTime:       start.Add(2 * time.Hour),
		})
		require.NoError(t, err)
		assert.True(t, created)

		list, err := p.ListEvents(ctx, store.EventFilter{From: time.Now(), Title: "john"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, start.Equal(list[0].StartTime))

		for _, title := range []string{"50% review", "a_b sync", "axb sync"} {
			_, err = p.CreateEvent(ctx, &store.CalendarEvent{Title: title, StartTime: start, EndTime: start.Add(time.Hour)})
			require.NoError(t, err)
		}
		list, err = p.ListEvents(ctx, store.EventFilter{From: time.Now(), Title: "a_b"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a_b sync", list[0].Title)
		list, err = p.ListEvents(ctx, store.EventFilter{From: time.Now(), Title: "50%"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "50% review", list[0].Title)

		got, err := p.GetEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Sync with John", got.Title)

		require.NoError(t, p.DeleteEvent(ctx, e.ID))
		_, err = p.GetEvent(ctx, e.ID)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("stats", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, p.RecordROI(ctx, now, 4, 0, 0.2))
		require.NoError(t, p.RecordROI(ctx, now, 0, 5, 0.1))
		roi, err := p.GetROI(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 4, roi.TasksSynced)
		assert.Equal(t, 5, roi.EventsSynced)

		require.NoError(t, p.AddAutomationLog(ctx, &store.AutomationLog{
			ActionType: store.ActionCalendarSync,
			Details:    "Synced 5 events, 0 errors",
			Success:    true,
		}))

		s, err := p.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 0, s.ActiveProjects)
		assert.Equal(t, 1, s.UpcomingMeetings)
		assert.InDelta(t, 0.3, s.MonthlyTimeSaved, 0.0001)
		assert.True(t, s.OverdueAmount.IsZero())
	})
}
