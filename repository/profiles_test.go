package repository_test

import (
	"context"
	"testing"
	"time"

	authsession "github.com/goliatone/go-authsession"
	"github.com/goliatone/go-authsession/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileStores(t *testing.T) map[string]authsession.ProfileStore {
	return map[string]authsession.ProfileStore{
		"bun":    setupManager(t).Profiles(),
		"memory": repository.NewMemoryProfiles(),
	}
}

func TestProfileStoreGetMissing(t *testing.T) {
	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetProfile(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, authsession.IsProfileNotFound(err))
		})
	}
}

func TestProfileStoreSetAndMerge(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	role := authsession.RoleUser
	name := "Ada"
	email := "ada@example.com"

	for storeName, store := range profileStores(t) {
		t.Run(storeName, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.SetProfile(ctx, "u1", authsession.ProfileUpdate{
				Email:       &email,
				DisplayName: &name,
				Role:        &role,
				CreatedAt:   &created,
				Metadata:    map[string]any{"theme": "dark"},
			}, false)
			require.NoError(t, err)

			login := created.Add(time.Hour)
			merged, err := store.SetProfile(ctx, "u1", authsession.ProfileUpdate{
				LastLogin: &login,
				Metadata:  map[string]any{"lang": "en"},
			}, true)
			require.NoError(t, err)

			assert.Equal(t, "Ada", merged.DisplayName)
			assert.Equal(t, authsession.RoleUser, merged.Role)
			require.NotNil(t, merged.LastLogin)
			assert.True(t, login.Equal(*merged.LastLogin))

			got, err := store.GetProfile(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, email, got.Email)
			require.NotNil(t, got.CreatedAt)
			assert.True(t, created.Equal(*got.CreatedAt))
			require.NotNil(t, got.UpdatedAt)
			assert.Equal(t, "dark", got.Metadata["theme"])
			assert.Equal(t, "en", got.Metadata["lang"])
		})
	}
}

func TestProfileStoreSetWithoutMergeReplaces(t *testing.T) {
	first := "First"
	admin := authsession.RoleAdmin
	second := "Second"

	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.SetProfile(ctx, "u2", authsession.ProfileUpdate{DisplayName: &first, Role: &admin}, false)
			require.NoError(t, err)

			_, err = store.SetProfile(ctx, "u2", authsession.ProfileUpdate{DisplayName: &second}, false)
			require.NoError(t, err)

			got, err := store.GetProfile(ctx, "u2")
			require.NoError(t, err)
			assert.Equal(t, "Second", got.DisplayName)
			assert.Empty(t, got.Role)
		})
	}
}

func TestProfileStoreUpdateProfile(t *testing.T) {
	admin := authsession.RoleAdmin
	user := authsession.RoleUser

	for name, store := range profileStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.UpdateProfile(ctx, "nobody", authsession.ProfileUpdate{Role: &admin})
			assert.True(t, authsession.IsProfileNotFound(err))

			_, err = store.SetProfile(ctx, "u3", authsession.ProfileUpdate{Role: &user}, false)
			require.NoError(t, err)

			updated, err := store.UpdateProfile(ctx, "u3", authsession.ProfileUpdate{Role: &admin})
			require.NoError(t, err)
			assert.Equal(t, authsession.RoleAdmin, updated.Role)

			got, err := store.GetProfile(ctx, "u3")
			require.NoError(t, err)
			assert.Equal(t, authsession.RoleAdmin, got.Role)
		})
	}
}

func TestMemoryProfilesReturnsCopies(t *testing.T) {
	store := repository.NewMemoryProfiles()
	ctx := context.Background()

	_, err := store.SetProfile(ctx, "u4", authsession.ProfileUpdate{Metadata: map[string]any{"a": 1}}, false)
	require.NoError(t, err)

	got, err := store.GetProfile(ctx, "u4")
	require.NoError(t, err)
	got.Metadata["a"] = 2
	got.DisplayName = "mutated"

	again, err := store.GetProfile(ctx, "u4")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Metadata["a"])
	assert.Empty(t, again.DisplayName)

	store.Delete("u4")
	_, err = store.GetProfile(ctx, "u4")
	assert.True(t, authsession.IsProfileNotFound(err))
}
