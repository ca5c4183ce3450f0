// Package pgstore implements the store on Postgres.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/store"
	"github.com/effective-security/xlog"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// register the driver
	_ "github.com/lib/pq"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/store", "pgstore")

//go:embed migrations/*.sql
var migrations embed.FS

const dateFormat = "2006-01-02"

// Provider is the Postgres store.
type Provider struct {
	db *sql.DB
}

var _ store.Store = (*Provider)(nil)

// Open connects to the database.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Provider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open database")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "unable to connect to database")
	}
	return &Provider{db: db}, nil
}

// New returns the store over an open database.
func New(db *sql.DB) *Provider {
	return &Provider{db: db}
}

// DB returns the underlying database.
func (p *Provider) DB() *sql.DB {
	return p.db
}

// Close closes the database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Migrate applies the embedded schema migrations.
func (p *Provider) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "unable to load migrations")
	}
	drv, err := postgres.WithInstance(p.db, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "unable to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return errors.Wrap(err, "unable to create migration")
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "unable to apply migrations")
	}

	version, dirty, _ := m.Version()
	logger.KV(xlog.INFO,
		"status", "migrated",
		"version", version,
		"dirty", dirty,
	)
	return nil
}

// GetSettings implements store.SettingsStore
func (p *Provider) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query settings")
	}
	defer rows.Close()

	res := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err = rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "unable to scan setting")
		}
		res[k] = v
	}
	return res, errors.WithStack(rows.Err())
}

// PutSettings implements store.SettingsStore
func (p *Provider) PutSettings(ctx context.Context, values map[string]string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for k, v := range values {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			k, v)
		if err != nil {
			return errors.Wrapf(err, "failed to save setting %s", k)
		}
	}
	return errors.WithStack(tx.Commit())
}

// AddAutomationLog implements store.AutomationStore
func (p *Provider) AddAutomationLog(ctx context.Context, l *store.AutomationLog) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO automation_logs (action_type, details, success) VALUES ($1, $2, $3)`,
		l.ActionType, l.Details, l.Success)
	return errors.Wrap(err, "unable to insert automation log")
}

// RecordROI implements store.AutomationStore
func (p *Provider) RecordROI(ctx context.Context, date time.Time, tasks, events int, hours float64) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO roi_metrics (metric_date, tasks_synced, events_synced, time_saved_hours)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (metric_date) DO UPDATE SET
			tasks_synced = roi_metrics.tasks_synced + EXCLUDED.tasks_synced,
			events_synced = roi_metrics.events_synced + EXCLUDED.events_synced,
			time_saved_hours = roi_metrics.time_saved_hours + EXCLUDED.time_saved_hours`,
		date.Format(dateFormat), tasks, events, hours)
	return errors.Wrap(err, "unable to record ROI metric")
}

// GetROI implements store.AutomationStore
func (p *Provider) GetROI(ctx context.Context, date time.Time) (*store.ROIMetric, error) {
	r := new(store.ROIMetric)
	err := p.db.QueryRowContext(ctx,
		`SELECT metric_date, tasks_synced, events_synced, time_saved_hours
		FROM roi_metrics WHERE metric_date = $1::date`,
		date.Format(dateFormat),
	).Scan(&r.MetricDate, &r.TasksSynced, &r.EventsSynced, &r.TimeSavedHours)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// Stats implements store.StatsStore
func (p *Provider) Stats(ctx context.Context, now time.Time) (*store.DashboardStats, error) {
	s := new(store.DashboardStats)
	err := p.db.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM clients WHERE status IN ('lead', 'qualified')),
		(SELECT count(*) FROM clients),
		(SELECT count(*) FROM projects WHERE status = 'active'),
		(SELECT count(*) FROM projects WHERE status = 'active' AND due_date < $1::date),
		(SELECT COALESCE(round(avg(health_score)), 0)::int FROM projects WHERE status = 'active'),
		(SELECT count(*) FROM invoices WHERE status = 'overdue' OR (status = 'sent' AND due_date < $1::date)),
		(SELECT COALESCE(sum(amount), 0) FROM invoices WHERE status = 'overdue' OR (status = 'sent' AND due_date < $1::date)),
		(SELECT COALESCE(sum(estimated_value), 0) FROM clients WHERE status IN ('lead', 'qualified', 'proposal')),
		(SELECT count(*) FROM calendar_events WHERE start_time >= $2 AND start_time <= $3),
		(SELECT COALESCE(sum(time_saved_hours), 0) FROM roi_metrics WHERE metric_date >= $4::date)`,
		store.Today(now).Format(dateFormat),
		now,
		now.Add(store.UpcomingWindow),
		now.Add(-store.ROIWindow).Format(dateFormat),
	).Scan(
		&s.ActiveLeads,
		&s.TotalClients,
		&s.ActiveProjects,
		&s.OverdueProjects,
		&s.AvgHealth,
		&s.OverdueInvoices,
		&s.OverdueAmount,
		&s.PipelineValue,
		&s.UpcomingMeetings,
		&s.MonthlyTimeSaved,
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compute stats")
	}
	return s, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(store.ErrNotFound)
	}
	return errors.WithStack(err)
}

// nullString maps empty strings to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns the LIKE pattern matching s literally anywhere in the value.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func limitClause(n int) string {
	if n > 0 {
		return " LIMIT " + strconv.Itoa(n)
	}
	return ""
}

type where struct {
	conds []string
	args  []any
}

// add appends the condition, "?" is replaced with the next placeholder.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
