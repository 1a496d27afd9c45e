package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_UpsertUser(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("first contact creates inactive user", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()

		got, err := storage.UpsertUser(context.Background(), "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.UserID)
		assert.False(t, got.IsActive)
		assert.Nil(t, got.PlanExpiry)
		assert.Nil(t, got.AssignedCredential)
	})

	t.Run("repeated call does not touch existing record", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()
		factory := NewTestDataFactory(storage)

		expiry := now.Add(10 * 24 * time.Hour)
		assigned := "acc_a"
		factory.CreateUser(t, "user-1", true, &expiry, &assigned)

		got, err := storage.UpsertUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		require.NotNil(t, got.PlanExpiry)
		assert.True(t, expiry.Equal(*got.PlanExpiry))
		require.NotNil(t, got.AssignedCredential)
		assert.Equal(t, "acc_a", *got.AssignedCredential)
	})
}

func TestStorage_GetUser(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()

		got, err := storage.GetUser(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrUserNotFound)
		assert.Nil(t, got)
	})

	t.Run("null columns map to nil pointers", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()
		factory := NewTestDataFactory(storage)

		factory.CreateUser(t, "user-1", false, nil, nil)

		got, err := storage.GetUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Nil(t, got.PlanExpiry)
		assert.Nil(t, got.AssignedCredential)
	})
}

func TestStorage_SetAccess(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("grant sets flag and expiry", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()
		factory := NewTestDataFactory(storage)

		factory.CreateUser(t, "user-1", false, nil, nil)

		expiry := now.Add(10 * 24 * time.Hour)
		err := storage.SetAccess(context.Background(), "user-1", true, &expiry)
		require.NoError(t, err)

		got, err := storage.GetUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		require.NotNil(t, got.PlanExpiry)
		assert.True(t, expiry.Equal(*got.PlanExpiry))
	})

	t.Run("revoke clears flag and expiry", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()
		factory := NewTestDataFactory(storage)

		expiry := now.Add(10 * 24 * time.Hour)
		factory.CreateUser(t, "user-1", true, &expiry, nil)

		err := storage.SetAccess(context.Background(), "user-1", false, nil)
		require.NoError(t, err)

		got, err := storage.GetUser(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Nil(t, got.PlanExpiry)
	})

	t.Run("unknown user", func(t *testing.T) {
		storage, cleanup := setupTestDatabase(t)
		defer cleanup()

		err := storage.SetAccess(context.Background(), "ghost", false, nil)
		require.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestStorage_ListExpiredActiveUsers(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)

	pastExpiry := now.Add(-1 * time.Hour)
	futureExpiry := now.Add(24 * time.Hour)
	assigned := "acc_a"
	factory.CreateUser(t, "user-expired", true, &pastExpiry, &assigned)
	factory.CreateUser(t, "user-current", true, &futureExpiry, nil)
	factory.CreateUser(t, "user-revoked", false, &pastExpiry, nil)
	factory.CreateUser(t, "user-no-expiry", true, nil, nil)

	got, err := storage.ListExpiredActiveUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user-expired", got[0].UserID)
	require.NotNil(t, got[0].AssignedCredential)
	assert.Equal(t, "acc_a", *got[0].AssignedCredential)
}

func TestStorage_ListActiveUsers(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	factory := NewTestDataFactory(storage)

	futureExpiry := now.Add(24 * time.Hour)
	factory.CreateUser(t, "user-active", true, &futureExpiry, nil)
	factory.CreateUser(t, "user-inactive", false, nil, nil)

	got, err := storage.ListActiveUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user-active", got[0].UserID)
}
