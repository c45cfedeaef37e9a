package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core/learning"
)

// contentApi is the admin authoring surface of the learning path.
type contentApi struct {
	svc      *learning.Service
	validate *validator.Validate
}

func registerContentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := contentApi{svc: deps.LearningSvc, validate: deps.Validate}

	ag := g.Group("/admin", jwt, adminMiddleware())

	ag.GET("/levels", api.queryLevels)
	ag.POST("/levels", api.createLevel)
	ag.GET("/levels/:id", api.retrieveLevel)
	ag.PUT("/levels/:id", api.updateLevel)
	ag.DELETE("/levels/:id", api.destroyLevel)

	ag.GET("/lessons", api.queryLessons)
	ag.POST("/lessons", api.createLesson)
	ag.GET("/lessons/:id", api.retrieveLesson)
	ag.PUT("/lessons/:id", api.updateLesson)
	ag.DELETE("/lessons/:id", api.destroyLesson)

	ag.GET("/steps", api.querySteps)
	ag.POST("/steps", api.createStep)
	ag.GET("/steps/:id", api.retrieveStep)
	ag.PUT("/steps/:id", api.updateStep)
	ag.DELETE("/steps/:id", api.destroyStep)

	ag.GET("/badges", api.queryBadges)
	ag.POST("/badges", api.createBadge)
	ag.GET("/badges/:id", api.retrieveBadge)
	ag.PUT("/badges/:id", api.updateBadge)
	ag.DELETE("/badges/:id", api.destroyBadge)

	ag.GET("/alphabet", api.queryAlphabet)
	ag.POST("/alphabet", api.createLetter)
	ag.GET("/alphabet/:id", api.retrieveLetter)
	ag.PUT("/alphabet/:id", api.updateLetter)
	ag.DELETE("/alphabet/:id", api.destroyLetter)

	ag.POST("/stats/rebuild", api.rebuildStats)
}

// Levels

func (api *contentApi) queryLevels(ctx echo.Context) error {
	levels, err := api.svc.Levels(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	if levels == nil {
		levels = []learning.Level{}
	}
	return ctx.JSON(http.StatusOK, levels)
}

func (api *contentApi) createLevel(ctx echo.Context) error {
	var data learning.NewLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLevel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	lvl, err := api.svc.CreateLevel(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating level")
	}
	return ctx.JSON(http.StatusCreated, lvl)
}

func (api *contentApi) retrieveLevel(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	lvl, err := api.svc.GetLevel(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding level")
	}
	return ctx.JSON(http.StatusOK, lvl)
}

func (api *contentApi) updateLevel(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.NewLevel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLevel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	lvl, err := api.svc.UpdateLevel(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating level")
	}
	return ctx.JSON(http.StatusOK, lvl)
}

func (api *contentApi) destroyLevel(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteLevel(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting level")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *contentApi) queryLessons(ctx echo.Context) error {
	levelID, err := int64Query(ctx, "level_id")
	if err != nil {
		return err
	}
	lessons, err := api.svc.Lessons(ctx.Request().Context(), levelID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []learning.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *contentApi) createLesson(ctx echo.Context) error {
	var data learning.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	lsn, err := api.svc.CreateLesson(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *contentApi) retrieveLesson(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	lsn, err := api.svc.GetLesson(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *contentApi) updateLesson(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	lsn, err := api.svc.UpdateLesson(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *contentApi) destroyLesson(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteLesson(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Steps

func (api *contentApi) querySteps(ctx echo.Context) error {
	lessonID, err := int64Query(ctx, "lesson_id")
	if err != nil {
		return err
	}
	steps, err := api.svc.Steps(ctx.Request().Context(), lessonID)
	if err != nil {
		return errors.Wrap(err, "querying steps")
	}
	if steps == nil {
		steps = []learning.Step{}
	}
	return ctx.JSON(http.StatusOK, steps)
}

func (api *contentApi) createStep(ctx echo.Context) error {
	var data learning.NewStep
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStep")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	step, err := api.svc.CreateStep(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating step")
	}
	return ctx.JSON(http.StatusCreated, step)
}

func (api *contentApi) retrieveStep(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	step, err := api.svc.GetStep(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding step")
	}
	return ctx.JSON(http.StatusOK, step)
}

func (api *contentApi) updateStep(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.NewStep
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStep")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	step, err := api.svc.UpdateStep(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating step")
	}
	return ctx.JSON(http.StatusOK, step)
}

func (api *contentApi) destroyStep(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteStep(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting step")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Badges

func (api *contentApi) queryBadges(ctx echo.Context) error {
	badges, err := api.svc.Badges(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	if badges == nil {
		badges = []learning.Badge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *contentApi) createBadge(ctx echo.Context) error {
	var data learning.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	badge, err := api.svc.CreateBadge(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating badge")
	}
	return ctx.JSON(http.StatusCreated, badge)
}

func (api *contentApi) retrieveBadge(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	badge, err := api.svc.GetBadge(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding badge")
	}
	return ctx.JSON(http.StatusOK, badge)
}

func (api *contentApi) updateBadge(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	badge, err := api.svc.UpdateBadge(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating badge")
	}
	return ctx.JSON(http.StatusOK, badge)
}

func (api *contentApi) destroyBadge(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteBadge(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting badge")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Alphabet

func (api *contentApi) queryAlphabet(ctx echo.Context) error {
	letters, err := api.svc.Alphabet(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying alphabet")
	}
	return ctx.JSON(http.StatusOK, letters)
}

func (api *contentApi) createLetter(ctx echo.Context) error {
	var data learning.NewLetter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLetter")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ltr, err := api.svc.CreateLetter(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating letter")
	}
	return ctx.JSON(http.StatusCreated, ltr)
}

func (api *contentApi) retrieveLetter(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	ltr, err := api.svc.GetLetter(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding letter")
	}
	return ctx.JSON(http.StatusOK, ltr)
}

func (api *contentApi) updateLetter(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	var data learning.NewLetter
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLetter")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ltr, err := api.svc.UpdateLetter(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating letter")
	}
	return ctx.JSON(http.StatusOK, ltr)
}

func (api *contentApi) destroyLetter(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteLetter(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting letter")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *contentApi) rebuildStats(ctx echo.Context) error {
	n, err := api.svc.RebuildAllStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "rebuilding stats")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"rebuilt": n})
}
