package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/findosh/backoffice/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := models.NewAdminSession(1, time.Hour)
	require.NoError(t, store.Create(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	got.Impersonation = &models.ImpersonationContext{ActingAdminID: 1, ImpersonatedUserID: 9}

	again, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, again.IsImpersonating(), "mutating a loaded session must not leak into the store")
}

func TestMemoryStore_SaveUnknown(t *testing.T) {
	store := NewMemoryStore()
	err := store.Save(context.Background(), models.NewAdminSession(1, time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := models.NewAdminSession(1, time.Hour)
	require.NoError(t, store.Create(ctx, s))

	boom := errors.New("disk full")
	store.FailSave = boom
	s.Impersonation = &models.ImpersonationContext{ActingAdminID: 1, ImpersonatedUserID: 9}
	assert.ErrorIs(t, store.Save(ctx, s), boom)

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsImpersonating())
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, models.NewAdminSession(1, -time.Minute)))
	require.NoError(t, store.Create(ctx, models.NewAdminSession(2, time.Hour)))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}
