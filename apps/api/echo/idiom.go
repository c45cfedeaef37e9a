package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core/idiom"
)

type idiomApi struct {
	svc      idiom.Service
	validate *validator.Validate
}

func registerIdiomAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := idiomApi{svc: deps.IdiomSvc, validate: deps.Validate}

	ig := g.Group("/idioms")
	ig.GET("", api.query)
	ig.GET("/tags", api.tags)
	ig.GET("/:id", api.retrieve)
	ig.POST("", api.create, jwt, editorMiddleware())
	ig.PUT("/:id", api.update, jwt, editorMiddleware())
	ig.DELETE("/:id", api.destroy, jwt, editorMiddleware())

	sg := g.Group("/suggestions")
	sg.POST("", api.suggest)
	sg.GET("", api.querySuggestions, jwt, editorMiddleware())
	sg.POST("/:id/approve", api.approveSuggestion, jwt, editorMiddleware())
	sg.DELETE("/:id", api.rejectSuggestion, jwt, editorMiddleware())
}

// Handlers

func (api *idiomApi) query(ctx echo.Context) error {
	filter := new(idiom.SearchFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []idiom.Idiom{})
	}
	idioms, err := api.svc.Search(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "searching idioms")
	}
	if idioms == nil {
		idioms = []idiom.Idiom{}
	}
	return ctx.JSON(http.StatusOK, idioms)
}

func (api *idiomApi) tags(ctx echo.Context) error {
	tags, err := api.svc.Tags(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing tags")
	}
	return ctx.JSON(http.StatusOK, tags)
}

func (api *idiomApi) retrieve(ctx echo.Context) error {
	idm, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding idiom")
	}
	return ctx.JSON(http.StatusOK, idm)
}

func (api *idiomApi) create(ctx echo.Context) error {
	var data idiom.NewIdiom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIdiom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	idm, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating idiom")
	}
	return ctx.JSON(http.StatusCreated, idm)
}

func (api *idiomApi) update(ctx echo.Context) error {
	var data idiom.NewIdiom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIdiom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	idm, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating idiom")
	}
	return ctx.JSON(http.StatusOK, idm)
}

func (api *idiomApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting idiom")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *idiomApi) suggest(ctx echo.Context) error {
	var data idiom.NewSuggestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSuggestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sug, err := api.svc.Suggest(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "suggesting idiom")
	}
	return ctx.JSON(http.StatusCreated, sug)
}

func (api *idiomApi) querySuggestions(ctx echo.Context) error {
	sugs, err := api.svc.Suggestions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying suggestions")
	}
	if sugs == nil {
		sugs = []idiom.Suggestion{}
	}
	return ctx.JSON(http.StatusOK, sugs)
}

func (api *idiomApi) approveSuggestion(ctx echo.Context) error {
	idm, err := api.svc.ApproveSuggestion(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving suggestion")
	}
	return ctx.JSON(http.StatusCreated, idm)
}

func (api *idiomApi) rejectSuggestion(ctx echo.Context) error {
	if err := api.svc.RejectSuggestion(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "rejecting suggestion")
	}
	return ctx.NoContent(http.StatusNoContent)
}
