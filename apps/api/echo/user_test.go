package echoapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
	"github.com/kashur/backend/storage/database/testutil"
)

const testPwd = "Dal#Lake-42x"

func Test_userApi_register(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.kash", testPwd, user.AdminRoles, true)
	learner := testutil.CreateUser(t, app.usrRepo, "Zoon", "zoon", "zoon@test.kash", testPwd, user.LearnerRoles, true)

	newUser := func(uname, email string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "Habba Khatoon", Username: uname, Email: email,
			Password: testPwd, PasswordConfirm: testPwd, Roles: roles,
		})
	}

	app.runHTTPTests(t, []httpTest{
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register",
			body: newUser("ZOON", "habba@test.kash"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/register",
			body: newUser("habba", "habba"), wantCode: http.StatusBadRequest,
		},
		{
			name: "roles need an admin", method: http.MethodPost, path: "/v1/users/register",
			body: newUser("habba", "habba@test.kash", user.RoleAdmin), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "learner cannot grant roles", method: http.MethodPost, path: "/v1/users/register",
			body: newUser("habba", "habba@test.kash", user.RoleEditor), token: app.token(t, learner),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles}),
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/v1/users/register",
			body: newUser("habba", "habba@test.kash"), token: "nope", wantCode: http.StatusUnauthorized,
		},
	})

	t.Run("self registration", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register", newUser(" Habba ", "Habba@Test.kash"))
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res RegisterResponse
		unmarshal(t, rec, &res)
		assert.Equal(t, "habba", res.User.Username)
		assert.Equal(t, "habba@test.kash", res.User.Email)
		assert.Equal(t, []string(user.LearnerRoles), []string(res.User.Roles))
		assert.NotEmpty(t, res.Token)
		assert.Nil(t, res.GuestMigration)
	})

	t.Run("admin grants editor", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/register", app.token(t, admin), newUser("lalded", "lal@test.kash", user.RoleEditor))
		app.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var res RegisterResponse
		unmarshal(t, rec, &res)
		assert.Equal(t, []string{user.RoleEditor}, []string(res.User.Roles))
	})
}

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, app.usrRepo, "Rafiq Mir", "rafiq", "rafiq@test.kash", testPwd, user.LearnerRoles, true)
	testutil.CreateUser(t, app.usrRepo, "Gone", "gone", "gone@test.kash", testPwd, user.LearnerRoles, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	app.runHTTPTests(t, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("nobody", testPwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("rafiq", "wrong"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("gone", testPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("by email", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", login(" RAFIQ@test.kash", testPwd))
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		unmarshal(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		assert.Nil(t, res.GuestMigration)
	})

	t.Run("migrates guest progress", func(t *testing.T) {
		lvl, err := app.learningSvc.CreateLevel(ctx, learning.NewLevel{Name: "Basics", Order: 1})
		require.NoError(t, err)
		lsn, err := app.learningSvc.CreateLesson(ctx, learning.NewLesson{LevelID: lvl.ID, Title: "Greetings", Order: 1})
		require.NoError(t, err)

		// the second entry points to a lesson that does not exist: it is dropped
		guest := base64.RawURLEncoding.EncodeToString([]byte(`{"` + itoa(lsn.ID) + `": 2, "999": 3}`))
		req, rec := newRequest(http.MethodPost, "/v1/users/login", login("rafiq", testPwd))
		req.AddCookie(&http.Cookie{Name: app.conf.Learning.GuestCookieName, Value: guest})
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		unmarshal(t, rec, &res)
		require.NotNil(t, res.GuestMigration)
		assert.Equal(t, []int64{lsn.ID}, res.GuestMigration.Migrated)
		assert.Equal(t, []int64{999}, res.GuestMigration.Dropped)
		assert.Empty(t, res.GuestMigration.Failed)

		cookie := responseCookie(rec, app.conf.Learning.GuestCookieName)
		require.NotNil(t, cookie)
		assert.True(t, cookie.MaxAge < 0, "nothing left to migrate")

		req, rec = newAuthRequest(http.MethodGet, "/v1/hechun/stats", res.Token)
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		var stats learning.Stats
		unmarshal(t, rec, &stats)
		assert.Equal(t, 2, stats.TotalStars)
		assert.Equal(t, 1, stats.LessonsCompleted)
	})
}

func Test_userApi_checkUsername(t *testing.T) {
	app := setup(t)
	rafiq := testutil.CreateUser(t, app.usrRepo, "Rafiq Mir", "rafiq", "rafiq@test.kash", testPwd, user.LearnerRoles, true)

	check := func(uname string) []byte {
		return marchallObj(t, CheckUsernameRequest{Username: uname})
	}
	app.runHTTPTests(t, []httpTest{
		{
			name: "too short", method: http.MethodPost, path: "/v1/users/check-username", body: check("ab"),
			wantCode: http.StatusOK, wantData: marchallObj(t, user.UsernameCheck{Valid: false, Message: "Username too short"}),
		},
		{
			name: "taken", method: http.MethodPost, path: "/v1/users/check-username", body: check("Rafiq"),
			wantCode: http.StatusOK, wantData: marchallObj(t, user.UsernameCheck{Valid: false, Message: "Username taken"}),
		},
		{
			name: "own username", method: http.MethodPost, path: "/v1/users/check-username", body: check("rafiq"),
			token: app.token(t, rafiq), wantCode: http.StatusOK,
			wantData: marchallObj(t, user.UsernameCheck{Valid: true, Message: "Username available"}),
		},
		{
			name: "available", method: http.MethodPost, path: "/v1/users/check-username", body: check("habba"),
			wantCode: http.StatusOK, wantData: marchallObj(t, user.UsernameCheck{Valid: true, Message: "Username available"}),
		},
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Rafiq Mir", "rafiq", "rafiq@test.kash", testPwd, user.LearnerRoles, true)

	tests := []struct {
		name     string
		email    string
		wantMail bool
	}{
		{name: "unknown email", email: "nobody@test.kash", wantMail: false},
		{name: "known email", email: "RAFIQ@test.kash", wantMail: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.mailSvc.Reset()
			req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, PasswordResetRequest{Email: tt.email}))
			app.serve(req, rec)
			assert.Equal(t, http.StatusOK, rec.Code)

			sent := app.mailSvc.SentMessages()
			if !tt.wantMail {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, "rafiq@test.kash", sent[0].To[0].Address)
			assert.Equal(t, "password_reset", sent[0].TemplateName)
		})
	}

	t.Run("confirm with a bad token", func(t *testing.T) {
		body := marchallObj(t, user.ResetUserPassword{Token: "x-y", UID: "bad", Password: testPwd, PasswordConfirm: testPwd})
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
		app.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token"`)
	})
}

func Test_userApi_admin(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.kash", testPwd, user.AdminRoles, true)
	rafiq := testutil.CreateUser(t, app.usrRepo, "Rafiq Mir", "rafiq", "rafiq@test.kash", testPwd, user.LearnerRoles, true)
	zoon := testutil.CreateUser(t, app.usrRepo, "Zoon", "zoon", "zoon@test.kash", testPwd, user.LearnerRoles, true)

	adminToken := app.token(t, admin)
	rafiqToken := app.token(t, rafiq)
	setAdmin := func(b bool) []byte { return marchallObj(t, map[string]bool{"is_admin": b}) }

	app.runHTTPTests(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: rafiqToken, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "search", path: "/v1/users?" + url.Values{"search": {"ZOO"}}.Encode(), token: adminToken,
			wantCode: http.StatusOK, wantData: marchallList(t, zoon),
		},
		{name: "roles", path: "/v1/users/roles", token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
		{name: "others are hidden", path: "/v1/users/" + zoon.ID, token: rafiqToken, wantCode: http.StatusNotFound},
		{name: "self", path: "/v1/users/" + rafiq.ID, token: rafiqToken, wantCode: http.StatusOK, wantData: marchallObj(t, rafiq)},
		{
			name: "learner cannot toggle admin", method: http.MethodPatch, path: "/v1/users/" + rafiq.ID + "/admin",
			body: setAdmin(true), token: rafiqToken, wantCode: http.StatusForbidden,
		},
		{
			name: "no self demotion", method: http.MethodPatch, path: "/v1/users/" + admin.ID + "/admin",
			body: setAdmin(false), token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: user.ErrSelfDemotion.Error()}),
		},
		{
			name: "is_admin required", method: http.MethodPatch, path: "/v1/users/" + zoon.ID + "/admin",
			body: []byte(`{}`), token: adminToken, wantCode: http.StatusBadRequest,
		},
		{name: "admin cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{
			name: "admin cannot bulk delete themselves", method: http.MethodDelete,
			path: "/v1/users?" + url.Values{"id": {zoon.ID, admin.ID}}.Encode(), token: adminToken, wantCode: http.StatusForbidden,
		},
	})

	t.Run("promote", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/users/"+zoon.ID+"/admin", adminToken, setAdmin(true))
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.True(t, usr.IsAdmin())
	})

	t.Run("update self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+rafiq.ID, rafiqToken, []byte(`{"name": " Rafiq M. "}`))
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Rafiq M.", usr.Name)
		assert.Equal(t, "rafiq", usr.Username)

		req, rec = newAuthRequest(http.MethodPut, "/v1/users/"+rafiq.ID, rafiqToken, []byte(`{"is_active": false}`))
		app.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("delete own account", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+rafiq.ID, rafiqToken)
		app.serve(req, rec)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: rafiq.ID})
		assert.Equal(t, user.ErrNotFound, err)

		// the token outlives the account
		req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", rafiqToken)
		app.serve(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token refresh", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", adminToken)
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res LoginResponse
		unmarshal(t, rec, &res)
		assert.NotEmpty(t, res.Token)
	})
}
