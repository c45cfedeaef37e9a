package echoapi

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
)

type learningApi struct {
	svc    *learning.Service
	usrSvc user.Service
	guests guestStores
	logger core.Logger
}

func registerLearningAPI(g *echo.Group, jwt, optionalJWT echo.MiddlewareFunc, guests guestStores, deps ServerDeps) {
	api := learningApi{svc: deps.LearningSvc, usrSvc: deps.UserSvc, guests: guests, logger: deps.Logger}

	hg := g.Group("/hechun")

	// guests allowed
	og := hg.Group("", optionalJWT)
	og.GET("/path", api.path)
	og.GET("/lessons/:id", api.lesson)
	og.GET("/lessons/:id/next", api.nextLesson)
	og.POST("/lessons/:id/progress", api.recordProgress)
	og.POST("/lessons/:id/attempts", api.submitAttempt)
	og.GET("/stats", api.stats)
	og.GET("/leaderboard", api.leaderboard)
	og.GET("/alphabet", api.alphabet)

	// authed endpoints
	ag := hg.Group("", jwt)
	ag.GET("/badges", api.badges)
	ag.POST("/guest/migrate", api.migrateGuest)
}

// learner is the authenticated user of the request, or a guest backed by the progress cookie.
// A token whose user is gone or deactivated is rejected.
func (api *learningApi) learner(ctx echo.Context) (learning.Learner, error) {
	if _, err := getContextClaims(ctx); err != nil {
		return learning.Learner{Shadow: api.guests.store(ctx)}, nil
	}
	usr, err := api.user(ctx)
	if err != nil {
		return learning.Learner{}, err
	}
	return learning.Learner{UserID: usr.ID}, nil
}

// user resolves the active user behind the request token.
func (api *learningApi) user(ctx echo.Context) (user.User, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	return usr, nil
}

// Handlers

func (api *learningApi) path(ctx echo.Context) error {
	learner, err := api.learner(ctx)
	if err != nil {
		return err
	}
	levels, err := api.svc.Path(ctx.Request().Context(), learner)
	if err != nil {
		return errors.Wrap(err, "building learning path")
	}
	return ctx.JSON(http.StatusOK, levels)
}

func (api *learningApi) lesson(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	learner, err := api.learner(ctx)
	if err != nil {
		return err
	}
	detail, err := api.svc.Lesson(ctx.Request().Context(), learner, id)
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *learningApi) nextLesson(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	next, err := api.svc.NextLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting next lesson")
	}
	return ctx.JSON(http.StatusOK, next) // null on the last lesson of a level
}

func (api *learningApi) recordProgress(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data ProgressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressRequest")
	}
	if data.Stars == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "stars", Error: "this field is required"})
	}

	learner, err := api.learner(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.RecordProgress(ctx.Request().Context(), learner, id, *data.Stars)
	if err != nil {
		return errors.Wrap(err, "recording progress")
	}
	api.logDegraded(learner, id, res)
	return ctx.JSON(http.StatusOK, res)
}

func (api *learningApi) submitAttempt(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.Attempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Attempt")
	}

	learner, err := api.learner(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.SubmitAttempt(ctx.Request().Context(), learner, id, data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	api.logDegraded(learner, id, res.Recorded)
	return ctx.JSON(http.StatusOK, res)
}

// logDegraded reports the post-write failures; the learner still gets a success.
func (api *learningApi) logDegraded(learner learning.Learner, lessonID int64, res learning.RecordResult) {
	if res.Degraded == nil {
		return
	}
	api.logger.Warn("progress saved with degraded side effects", res.Degraded,
		map[string]interface{}{"user_id": learner.UserID, "lesson_id": lessonID})
}

func (api *learningApi) stats(ctx echo.Context) error {
	learner, err := api.learner(ctx)
	if err != nil {
		return err
	}
	stats, err := api.svc.Stats(ctx.Request().Context(), learner)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *learningApi) leaderboard(ctx echo.Context) error {
	entries, err := api.svc.Leaderboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting leaderboard")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *learningApi) alphabet(ctx echo.Context) error {
	letters, err := api.svc.Alphabet(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting alphabet")
	}
	return ctx.JSON(http.StatusOK, letters)
}

func (api *learningApi) badges(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	badges, err := api.svc.UserBadges(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting badges")
	}
	if badges == nil {
		badges = []learning.UserBadge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *learningApi) migrateGuest(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.MigrateGuest(ctx.Request().Context(), usr.ID, api.guests.store(ctx))
	if err != nil {
		return errors.Wrap(err, "migrating guest progress")
	}
	return ctx.JSON(http.StatusOK, newMigrationResponse(res))
}

type (
	ProgressRequest struct {
		Stars *int `json:"stars"`
	}

	MigrationResponse struct {
		Migrated []int64 `json:"migrated"`
		Dropped  []int64 `json:"dropped"`
		Failed   []int64 `json:"failed"`
	}
)

func newMigrationResponse(res learning.MigrationResult) *MigrationResponse {
	resp := &MigrationResponse{Migrated: res.Migrated, Failed: make([]int64, 0, len(res.Failed))}
	if resp.Migrated == nil {
		resp.Migrated = []int64{}
	}
	resp.Dropped = res.Dropped
	if resp.Dropped == nil {
		resp.Dropped = []int64{}
	}
	for id := range res.Failed {
		resp.Failed = append(resp.Failed, id)
	}
	sort.Slice(resp.Failed, func(i, j int) bool { return resp.Failed[i] < resp.Failed[j] })
	return resp
}
