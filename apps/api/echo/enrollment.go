package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type enrollmentApi struct {
	auth   *authenticator
	ledger course.Ledger
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, ledger course.Ledger) {
	api := enrollmentApi{auth: auth, ledger: ledger}

	eg := g.Group("/enrollments", jwt, activeMiddleware(auth))
	eg.POST("", api.enroll)
	eg.GET("/:id", api.retrieve)
	eg.DELETE("/:id", api.cancel)
	eg.POST("/:id/approve", api.approve, adminMiddleware())
	eg.POST("/:id/reject", api.reject, adminMiddleware())
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	var data course.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	userID := ctxUsr.ID
	if ctxUsr.IsAdmin() && data.UserID != "" {
		userID = data.UserID
	}

	enr, err := api.ledger.Enroll(ctx.Request().Context(), userID, data.CourseID)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

// ownEnrollment returns the enrollment of the path if the context user owns it
// or is an admin.
func (api *enrollmentApi) ownEnrollment(ctx echo.Context) (course.Enrollment, error) {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "getting context user")
	}
	enr, err := api.ledger.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if enr.UserID != ctxUsr.ID && !ctxUsr.IsAdmin() {
		return course.Enrollment{}, core.ErrPermissionDenied
	}
	return enr, nil
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	enr, err := api.ownEnrollment(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) cancel(ctx echo.Context) error {
	enr, err := api.ownEnrollment(ctx)
	if err != nil {
		return err
	}
	if err = api.ledger.Cancel(ctx.Request().Context(), enr.ID); err != nil {
		return errors.Wrap(err, "cancelling enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *enrollmentApi) approve(ctx echo.Context) error {
	enr, err := api.ledger.Approve(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) reject(ctx echo.Context) error {
	enr, err := api.ledger.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}
