package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) RefreshCache {
	t.Helper()

	mr := miniredis.RunT(t)

	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func sampleEntry() *RefreshEntry {
	return &RefreshEntry{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Used:      false,
		Revoked:   false,
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second).UTC(),
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry()
	require.NoError(t, c.Set(ctx, "hash-1", e, time.Hour))

	got, ok, err := c.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, e.ID, got.ID)
	require.Equal(t, e.UserID, got.UserID)
	require.False(t, got.Used)
	require.False(t, got.Revoked)
	require.Equal(t, e.ExpiresAt.Unix(), got.ExpiresAt.Unix())
}

func TestGet_MissingKey(t *testing.T) {
	c := newTestCache(t)

	got, ok, err := c.Get(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestMarkUsed_SetsBothFlags(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry()
	require.NoError(t, c.Set(ctx, "hash-2", e, time.Hour))
	require.NoError(t, c.MarkUsed(ctx, "hash-2"))

	got, ok, err := c.Get(ctx, "hash-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Used)
	require.True(t, got.Revoked)
}

func TestSet_TTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "hash-3", sampleEntry(), time.Minute))

	// miniredis позволяет промотать время без ожидания.
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "hash-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url", "")
	require.Error(t, err)
}
