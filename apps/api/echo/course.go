package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseApi struct {
	catalog course.Catalog
	ledger  course.Ledger
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, catalog course.Catalog, ledger course.Ledger) {
	api := courseApi{catalog: catalog, ledger: ledger}
	admin := []echo.MiddlewareFunc{jwt, adminMiddleware(), activeMiddleware(auth)}

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.GET("/categories", api.queryCategories)
	cg.GET("/:id", api.retrieve)
	cg.POST("", api.create, admin...)
	cg.PUT("/:id", api.update, admin...)
	cg.DELETE("/:id", api.destroy, admin...)
	cg.GET("/:id/enrollments", api.queryEnrollments, admin...)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := &course.QueryFilter{
		Category: ctx.QueryParam("category"),
		Status:   course.Status(ctx.QueryParam("status")),
		Search:   ctx.QueryParam("search"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, course.OrderingFields...)
	page := bindPage(ctx)

	courses, total, err := api.catalog.Query(ctx.Request().Context(), filter, ordering.Orderings, page)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, core.NewPage(courses, total, page))
}

func (api *courseApi) queryCategories(ctx echo.Context) error {
	cats, err := api.catalog.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []string{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.catalog.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}

	crs, err := api.catalog.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	crs, err := api.catalog.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.catalog.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	crs, err := api.catalog.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	enrs, err := api.ledger.ListForCourse(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing course enrollments")
	}
	if enrs == nil {
		enrs = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}
