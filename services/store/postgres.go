package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/dealmungchi/dealcrawler/internal/deal"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	native_id        TEXT NOT NULL,
	title            TEXT NOT NULL,
	category         TEXT NOT NULL,
	original_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
	sale_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	discount_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
	image_url        TEXT NOT NULL DEFAULT '',
	original_url     TEXT NOT NULL DEFAULT '',
	seller           TEXT NOT NULL DEFAULT '',
	is_free_shipping BOOLEAN NOT NULL DEFAULT FALSE,
	posted_at        TIMESTAMPTZ NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	view_count       INTEGER NOT NULL DEFAULT 0,
	like_count       INTEGER NOT NULL DEFAULT 0,
	comment_count    INTEGER NOT NULL DEFAULT 0,
	crawled_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (source, native_id)
);
CREATE INDEX IF NOT EXISTS deals_posted_at_idx ON deals (posted_at DESC);
`

const dealColumns = `id, source, native_id, title, category, original_price, sale_price,
	discount_rate, image_url, original_url, seller, is_free_shipping, posted_at, status,
	view_count, like_count, comment_count, crawled_at`

// Postgres is a Gateway backed by a deals table
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to dsn and verifies the connection
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an open connection
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the deals table if it is missing
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) ExistsByKey(ctx context.Context, source, nativeID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM deals WHERE source = $1 AND native_id = $2)`
	if err := p.db.GetContext(ctx, &exists, query, source, nativeID); err != nil {
		return false, fmt.Errorf("check deal exists: %w", err)
	}
	return exists, nil
}

func (p *Postgres) SaveIfNew(ctx context.Context, d deal.Deal) (bool, error) {
	if d.ID == "" {
		d.ID = deal.NewID(d.Source, d.NativeID)
	}
	query := `
		INSERT INTO deals (` + dealColumns + `)
		VALUES (:id, :source, :native_id, :title, :category, :original_price, :sale_price,
			:discount_rate, :image_url, :original_url, :seller, :is_free_shipping, :posted_at, :status,
			:view_count, :like_count, :comment_count, :crawled_at)
		ON CONFLICT (source, native_id) DO NOTHING
	`
	res, err := p.db.NamedExecContext(ctx, query, d)
	if err != nil {
		return false, fmt.Errorf("save deal %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save deal %s: %w", d.ID, err)
	}
	return n == 1, nil
}

func (p *Postgres) MarkEnded(ctx context.Context, source, nativeID string) (bool, error) {
	query := `UPDATE deals SET status = $3 WHERE source = $1 AND native_id = $2 AND status <> $3`
	res, err := p.db.ExecContext(ctx, query, source, nativeID, string(deal.StatusEnded))
	if err != nil {
		return false, fmt.Errorf("end deal %s: %w", deal.NewID(source, nativeID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end deal %s: %w", deal.NewID(source, nativeID), err)
	}
	return n == 1, nil
}

func (p *Postgres) FindAll(ctx context.Context, f Filter) ([]deal.Deal, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + dealColumns + ` FROM deals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit(), max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY posted_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	deals := []deal.Deal{}
	if err := p.db.SelectContext(ctx, &deals, query, args...); err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

func (p *Postgres) FindByID(ctx context.Context, id string) (deal.Deal, error) {
	var d deal.Deal
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`
	if err := p.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deal.Deal{}, ErrNotFound
		}
		return deal.Deal{}, fmt.Errorf("get deal %s: %w", id, err)
	}
	return d, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
