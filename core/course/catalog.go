package course

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		// GetCourse returns ErrCourseNotFound when no course has this id.
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// QueryCourses returns one page of the courses matching filter, and the total match count.
		// QueryFilter.Search does a case-insensitive match on one of Title, Description or Instructor.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.PageRequest, exec ...core.DBExecutor) ([]Course, int, error)
		// UpdateCourse saves every field but CurrentEnrollment. The status is derived from the
		// stored count unless crs.Status is CLOSED.
		UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		// DeleteCourse removes the course and all of its enrollments.
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]string, error)
		// IncrementEnrollment atomically takes one capacity slot if the course is ACTIVE and
		// below capacity, and returns ErrCourseUnavailable otherwise.
		IncrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// DecrementEnrollment atomically frees one capacity slot, floored at zero.
		DecrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	}

	// Catalog owns courses: their descriptive data, capacity accounting and status derivation.
	Catalog interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Get(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.PageRequest) ([]Course, int, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, id string) error
		Categories(ctx context.Context) ([]string, error)

		IsEnrollmentAvailable(crs Course) bool
		IncrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		DecrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	}

	catalog struct {
		tx   core.Transactor
		repo Repository
	}
)

var _ Catalog = (*catalog)(nil) // interface compliance check

func NewCatalog(tx core.Transactor, repo Repository) Catalog {
	return &catalog{tx: tx, repo: repo}
}

func (cat *catalog) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := nc.Validate(); err != nil {
		return Course{}, err
	}
	now := core.Now()
	crs := Course{
		ID:          uuid.New().String(),
		Title:       nc.Title,
		Description: nc.Description,
		Instructor:  nc.Instructor,
		Category:    nc.Category,
		Capacity:    nc.Capacity,
		Status:      StatusActive,
		StartDate:   nc.StartDate,
		EndDate:     nc.EndDate,
		Duration:    nc.Duration,
		Price:       nc.Price,
		ImageURL:    nc.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	crs.RefreshStatus()
	crs, err := cat.repo.CreateCourse(ctx, crs)
	return crs, errors.Wrap(err, "creating course")
}

func (cat *catalog) Get(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return cat.repo.GetCourse(ctx, id, exec...)
}

func (cat *catalog) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.PageRequest) ([]Course, int, error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	return cat.repo.QueryCourses(ctx, filter, core.CleanOrdering(ordering, OrderingFields...), page)
}

func (cat *catalog) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	var crs Course
	err := cat.tx.InTx(ctx, func(exec core.DBExecutor) error {
		orig, err := cat.repo.GetCourse(ctx, id, exec)
		if err != nil {
			return err
		}
		if err := uc.Validate(orig); err != nil {
			return err
		}
		upd := uc.apply(orig)
		upd.UpdatedAt = core.Now()
		crs, err = cat.repo.UpdateCourse(ctx, upd, exec)
		return err
	})
	return crs, err
}

func (cat *catalog) Delete(ctx context.Context, id string) error {
	return cat.repo.DeleteCourse(ctx, id)
}

func (cat *catalog) Categories(ctx context.Context) ([]string, error) {
	return cat.repo.QueryCategories(ctx)
}

func (cat *catalog) IsEnrollmentAvailable(crs Course) bool {
	return crs.IsEnrollmentAvailable()
}

func (cat *catalog) IncrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return cat.repo.IncrementEnrollment(ctx, id, exec...)
}

func (cat *catalog) DecrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error) {
	return cat.repo.DecrementEnrollment(ctx, id, exec...)
}
