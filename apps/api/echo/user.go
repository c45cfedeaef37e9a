package echoapi

import (
	"net/http"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set these roles"
)

type userApi struct {
	svc         user.Service
	learningSvc *learning.Service
	auth        *authenticator
	guests      guestStores
	logger      core.Logger
	validate    *validator.Validate
	translator  ut.Translator
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, guests guestStores, deps ServerDeps) {
	api := userApi{
		svc:         deps.UserSvc,
		learningSvc: deps.LearningSvc,
		auth:        auth,
		guests:      guests,
		logger:      deps.Logger,
		validate:    deps.Validate,
		translator:  deps.Translator,
	}
	optionalJWT := auth.middleware(true)

	ug := g.Group("/users")

	// un-authed endpoints (an admin token unlocks roles on register)
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset-confirm`
	ug.POST("/register", api.create, optionalJWT)
	ug.POST("/login", api.login)
	ug.POST("/check-username", api.checkUsername, optionalJWT)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("", api.query, adminMiddleware())
	ag.DELETE("", api.destroyMultiple, adminMiddleware())
	ag.GET("/roles", api.queryRoles, adminMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", ctxUserOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.PATCH("/admin", api.setAdmin, adminMiddleware())
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, api.validate, api.svc); err != nil {
		return err
	}

	// only admins may pick roles & never above their own max role
	if len(data.Roles) > 0 {
		ctxUsr, err := getContextUser(ctx, api.svc)
		if err != nil || !ctxUsr.IsAdmin() || user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
			return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
		}
	}

	usr, err := api.svc.Create(rctx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	token, err := api.auth.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	// guest progress belongs to whoever registers from this browser, not to accounts created by someone logged in
	var migration *MigrationResponse
	if _, err := getContextClaims(ctx); err != nil {
		migration = api.migrateGuest(ctx, usr)
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{User: usr, Token: token, GuestMigration: migration})
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.tokenFor(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, GuestMigration: api.migrateGuest(ctx, usr)})
}

// migrateGuest replays the guest cookie into the account. Failed entries stay in the rewritten cookie.
func (api *userApi) migrateGuest(ctx echo.Context, usr user.User) *MigrationResponse {
	if api.learningSvc == nil || !api.guests.hasEntries(ctx) {
		return nil
	}
	res, err := api.learningSvc.MigrateGuest(ctx.Request().Context(), usr.ID, api.guests.store(ctx))
	if err != nil {
		// login still succeeds, the cookie is left for a later attempt
		api.logger.Error("migrating guest progress", err, usr)
	}
	return newMigrationResponse(res)
}

func (api *userApi) checkUsername(ctx echo.Context) error {
	var data CheckUsernameRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckUsernameRequest")
	}

	var exclID string
	if claims, err := getContextClaims(ctx); err == nil {
		exclID = claims.Subject
	}
	res, err := api.svc.CheckUsername(ctx.Request().Context(), data.Username, exclID)
	if err != nil {
		return errors.Wrap(err, "checking username")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// `IsActive` and `Roles` can only be changed by admin
	if !ctxUsr.IsAdmin() && (data.IsActive != nil || data.Roles != nil) {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if err := data.Validate(rctx, usr, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err = api.svc.Update(rctx, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) setAdmin(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data SetAdminRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetAdminRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	usr, err = api.svc.SetAdmin(ctx.Request().Context(), ctxUsr, usr.ID, *data.IsAdmin)
	if err != nil {
		return errors.Wrap(err, "setting admin role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// destroy deletes an account, its progress, stats & badges with it.
// Users may delete their own account, admins any account but theirs.
func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID && ctxUsr.IsAdmin() {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxUsr.ID); i < len(query.IDs) && query.IDs[i] == ctxUsr.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token          string             `json:"token"`
		GuestMigration *MigrationResponse `json:"guest_migration,omitempty"`
	}

	RegisterResponse struct {
		User           user.User          `json:"user"`
		Token          string             `json:"token"`
		GuestMigration *MigrationResponse `json:"guest_migration,omitempty"`
	}

	CheckUsernameRequest struct {
		Username string `json:"username"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SetAdminRequest struct {
		IsAdmin *bool `json:"is_admin" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
