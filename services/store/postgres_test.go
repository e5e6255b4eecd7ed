package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/deal/dealtesting"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skipping test")
	}

	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres is not available, skipping test: %v", err)
	}
	require.NoError(t, p.EnsureSchema(ctx))
	_, err = p.db.ExecContext(ctx, `DELETE FROM deals WHERE source = 'pgtest'`)
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPostgresGateway(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	d := dealtesting.FakeDeal(func(d *deal.Deal) {
		d.Source = "pgtest"
		d.ID = deal.NewID(d.Source, d.NativeID)
		d.PostedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	exists, err := p.ExistsByKey(ctx, d.Source, d.NativeID)
	require.NoError(t, err)
	assert.False(t, exists)

	saved, err := p.SaveIfNew(ctx, d)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = p.SaveIfNew(ctx, d)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := p.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, d.Status, got.Status)
	assert.True(t, d.PostedAt.Equal(got.PostedAt))

	list, err := p.FindAll(ctx, Filter{Source: "pgtest", Status: deal.StatusActive})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	updated, err := p.MarkEnded(ctx, d.Source, d.NativeID)
	require.NoError(t, err)
	assert.True(t, updated)
	updated, err = p.MarkEnded(ctx, d.Source, d.NativeID)
	require.NoError(t, err)
	assert.False(t, updated)

	got, err = p.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.StatusEnded, got.Status)

	_, err = p.FindByID(ctx, "pgtest:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
