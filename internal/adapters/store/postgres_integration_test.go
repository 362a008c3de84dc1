//go:build postgres

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagioo/Call-sub001/internal/domain"
)

func openPostgresStoreForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("CALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALL_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn, WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestPostgresStoreClaimCreator(t *testing.T) {
	s := openPostgresStoreForTest(t)
	ctx := context.Background()
	room := domain.RoomID(uuid.NewString())

	_, ok, err := s.CreatorOf(ctx, room)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.ClaimCreator(ctx, room, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), got)

	got, err = s.ClaimCreator(ctx, room, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), got)

	creator, ok, err := s.CreatorOf(ctx, room)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), creator)
}
