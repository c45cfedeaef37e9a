package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/user"
	"github.com/kashur/backend/storage/database/testutil"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	rafiq := testutil.CreateUser(t, repo, "Rafiq Mir", "rafiq", "rafiq@test.kash", "Wular#Lake2024", user.LearnerRoles, true, now.Add(-2*time.Hour))
	zoon := testutil.CreateUser(t, repo, "Zoon Bhat", "zoon", "zoon@test.kash", "", user.AdminRoles, true, now.Add(-time.Hour))
	_ = testutil.CreateUser(t, repo, "Old Timer", "oldtimer", "old@test.kash", "", user.EditorRoles, false, now)

	t.Run("CheckUsernameUniqueness", func(t *testing.T) {
		tests := []struct {
			name     string
			username string
			email    string
			excluded []user.User
			wantErr  error
		}{
			{name: "free", username: "habba", email: "habba@test.kash"},
			{name: "username taken", username: "rafiq", email: "habba@test.kash", wantErr: user.ErrUsernameExists},
			{name: "email taken", username: "habba", email: "zoon@test.kash", wantErr: user.ErrEmailExists},
			{name: "own values", username: "rafiq", email: "rafiq@test.kash", excluded: []user.User{rafiq}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := repo.CheckUsernameUniqueness(ctx, tt.username, tt.email, tt.excluded)
				assert.Equal(t, tt.wantErr, err)
			})
		}
	})

	t.Run("GetUser", func(t *testing.T) {
		usr, err := repo.GetUser(ctx, user.GetFilter{ID: rafiq.ID})
		require.NoError(t, err)
		assert.Equal(t, "rafiq", usr.Username)
		assert.Equal(t, core.StringList(user.LearnerRoles), usr.Roles)
		assert.NoError(t, usr.CheckPassword("Wular#Lake2024"))

		usr, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"zoon@test.kash"}})
		require.NoError(t, err)
		assert.Equal(t, zoon.ID, usr.ID)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Username: "nobody"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("QueryUsers", func(t *testing.T) {
		active := true
		tests := []struct {
			name   string
			filter *user.QueryFilter
			want   []string
		}{
			{name: "all, newest first", want: []string{"oldtimer", "zoon", "rafiq"}},
			{name: "search", filter: &user.QueryFilter{Search: "BHAT"}, want: []string{"zoon"}},
			{name: "role prefix", filter: &user.QueryFilter{Roles: []string{"admin"}}, want: []string{"zoon"}},
			{name: "active", filter: &user.QueryFilter{IsActive: &active}, want: []string{"zoon", "rafiq"}},
			{name: "created from", filter: &user.QueryFilter{CreatedFrom: now.Add(-90 * time.Minute)}, want: []string{"oldtimer", "zoon"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tt.filter, nil)
				require.NoError(t, err)
				unames := make([]string, 0, len(users))
				for _, u := range users {
					unames = append(unames, u.Username)
				}
				assert.Equal(t, tt.want, unames)
			})
		}

		users, err := repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "username", Ascending: true}, {Field: "1; DROP TABLE users"}})
		require.NoError(t, err)
		assert.Equal(t, "oldtimer", users[0].Username)
	})

	t.Run("UpdateUser", func(t *testing.T) {
		usr := zoon
		usr.Name = "Zoon B."
		login := now.Add(time.Minute)
		usr.LastLogin = &login
		_, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: zoon.ID})
		require.NoError(t, err)
		assert.Equal(t, "Zoon B.", got.Name)
		require.NotNil(t, got.LastLogin)
		assert.True(t, login.Equal(*got.LastLogin))

		_, err = repo.UpdateUser(ctx, user.User{ID: "00000000-0000-0000-0000-000000000000"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("DeleteUsersByID", func(t *testing.T) {
		n, err := repo.DeleteUsersByID(ctx, []string{rafiq.ID, "00000000-0000-0000-0000-000000000000"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.GetUser(ctx, user.GetFilter{ID: rafiq.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
