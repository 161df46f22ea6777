package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const PostgresSchema = `CREATE TABLE IF NOT EXISTS ses_settings (
	access_key    TEXT PRIMARY KEY,
	max_send_rate INTEGER NOT NULL DEFAULT 0,
	templates     TEXT[] NOT NULL DEFAULT '{}',
	updated       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	selectSettingsSql = `SELECT access_key, max_send_rate, templates, updated
FROM ses_settings WHERE access_key = $1`

	upsertSettingsSql = `INSERT INTO ses_settings
(access_key, max_send_rate, templates, updated) VALUES ($1, $2, $3, $4)
ON CONFLICT (access_key) DO UPDATE SET
max_send_rate = EXCLUDED.max_send_rate,
templates = EXCLUDED.templates,
updated = EXCLUDED.updated`

	setMaxSendRateSql = `INSERT INTO ses_settings
(access_key, max_send_rate, updated) VALUES ($1, $2, $3)
ON CONFLICT (access_key) DO UPDATE SET
max_send_rate = EXCLUDED.max_send_rate, updated = EXCLUDED.updated`

	// The WHERE clause leaves an existing row untouched, and RowsAffected at
	// zero, when it already contains the template.
	addTemplateSql = `INSERT INTO ses_settings
(access_key, templates, updated) VALUES ($1, ARRAY[$2::TEXT], $3)
ON CONFLICT (access_key) DO UPDATE SET
templates = array_append(ses_settings.templates, $2::TEXT),
updated = EXCLUDED.updated
WHERE NOT ($2::TEXT = ANY(ses_settings.templates))`

	removeTemplateSql = `UPDATE ses_settings
SET templates = array_remove(templates, $2::TEXT), updated = $3
WHERE access_key = $1`
)

// Postgres stores AccountSettings in the ses_settings table.
type Postgres struct {
	Db  *sql.DB
	Now func() time.Time
}

var _ SettingsStore = &Postgres{}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	return &Postgres{Db: db, Now: time.Now}, nil
}

func (p *Postgres) CreateSchema(ctx context.Context) error {
	if _, err := p.Db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create ses_settings table: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

func (p *Postgres) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Postgres) GetSettings(
	ctx context.Context, accessKey string,
) (*AccountSettings, error) {
	s := &AccountSettings{}
	row := p.Db.QueryRowContext(ctx, selectSettingsSql, accessKey)
	err := row.Scan(
		&s.AccessKey, &s.MaxSendRate, pq.Array(&s.Templates), &s.Updated,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSettingsNotFound, accessKey)
	} else if err != nil {
		const errFmt = "failed to get settings for %s: %w"
		return nil, fmt.Errorf(errFmt, accessKey, err)
	}
	return s, nil
}

func (p *Postgres) PutSettings(
	ctx context.Context, settings *AccountSettings,
) error {
	_, err := p.Db.ExecContext(
		ctx,
		upsertSettingsSql,
		settings.AccessKey,
		settings.MaxSendRate,
		pq.Array(settings.Templates),
		settings.Updated,
	)
	if err != nil {
		const errFmt = "failed to put settings for %s: %w"
		return fmt.Errorf(errFmt, settings.AccessKey, err)
	}
	return nil
}

func (p *Postgres) SetMaxSendRate(
	ctx context.Context, accessKey string, rate int,
) error {
	_, err := p.Db.ExecContext(ctx, setMaxSendRateSql, accessKey, rate, p.now())
	if err != nil {
		const errFmt = "failed to set max send rate for %s: %w"
		return fmt.Errorf(errFmt, accessKey, err)
	}
	return nil
}

func (p *Postgres) AddTemplate(
	ctx context.Context, accessKey, name string,
) (bool, error) {
	result, err := p.Db.ExecContext(ctx, addTemplateSql, accessKey, name, p.now())
	if err != nil {
		return false, fmt.Errorf("failed to register template %s: %w", name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to register template %s: %w", name, err)
	}
	return n == 1, nil
}

func (p *Postgres) RemoveTemplate(
	ctx context.Context, accessKey, name string,
) error {
	_, err := p.Db.ExecContext(ctx, removeTemplateSql, accessKey, name, p.now())
	if err != nil {
		return fmt.Errorf("failed to unregister template %s: %w", name, err)
	}
	return nil
}
