package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/storage/database"
)

const courseColumns = `id, title, description, instructor, category, capacity, current_enrollment,
	status, start_date, end_date, duration, price, image_url, created_at, updated_at`

type courseRow struct {
	ID                string    `db:"id"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	Instructor        string    `db:"instructor"`
	Category          string    `db:"category"`
	Capacity          int       `db:"capacity"`
	CurrentEnrollment int       `db:"current_enrollment"`
	Status            string    `db:"status"`
	StartDate         null.Time `db:"start_date"`
	EndDate           null.Time `db:"end_date"`
	Duration          string    `db:"duration"`
	Price             int64     `db:"price"`
	ImageURL          string    `db:"image_url"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func toCourseRow(crs course.Course) courseRow {
	return courseRow{
		ID:                crs.ID,
		Title:             crs.Title,
		Description:       crs.Description,
		Instructor:        crs.Instructor,
		Category:          crs.Category,
		Capacity:          crs.Capacity,
		CurrentEnrollment: crs.CurrentEnrollment,
		Status:            string(crs.Status),
		StartDate:         null.TimeFromPtr(crs.StartDate),
		EndDate:           null.TimeFromPtr(crs.EndDate),
		Duration:          crs.Duration,
		Price:             crs.Price,
		ImageURL:          crs.ImageURL,
		CreatedAt:         crs.CreatedAt.UTC(),
		UpdatedAt:         crs.UpdatedAt.UTC(),
	}
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		Instructor:        r.Instructor,
		Category:          r.Category,
		Capacity:          r.Capacity,
		CurrentEnrollment: r.CurrentEnrollment,
		Status:            course.Status(r.Status),
		StartDate:         utcPtr(r.StartDate),
		EndDate:           utcPtr(r.EndDate),
		Duration:          r.Duration,
		Price:             r.Price,
		ImageURL:          r.ImageURL,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type courseRepository struct {
	repo
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{repo{db: db}}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Course{}, err
	}
	crs.CurrentEnrollment = 0
	crs.RefreshStatus()

	var row courseRow
	err = namedGet(ctx, q, &row, `
		INSERT INTO courses (`+courseColumns+`)
		VALUES (:id, :title, :description, :instructor, :category, :capacity, :current_enrollment,
			:status, :start_date, :end_date, :duration, :price, :image_url, :created_at, :updated_at)
		RETURNING `+courseColumns, toCourseRow(crs))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrCourseNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Course{}, err
	}

	var row courseRow
	if err = sqlx.GetContext(ctx, q, &row, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrCourseNotFound
		}
		return course.Course{}, errors.Wrap(err, "selecting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) QueryCourses(
	ctx context.Context,
	filter *course.QueryFilter,
	ordering []core.DBOrdering,
	page core.PageRequest,
	exec ...core.DBExecutor,
) ([]course.Course, int, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, 0, err
	}

	var where database.Where
	if filter != nil {
		if filter.Category != "" {
			where.Add("lower(category) = lower(?)", filter.Category)
		}
		if filter.Status != "" {
			where.Add("status = ?", string(filter.Status))
		}
		if filter.Search != "" {
			val := database.Like(filter.Search)
			where.Add("(title ILIKE ? OR description ILIKE ? OR instructor ILIKE ?)", val, val, val)
		}
	}

	var total int
	if err = sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM courses`+where.String(), where.Args()...); err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	query := `SELECT ` + courseColumns + ` FROM courses` + where.String() +
		core.OrderByClause(ordering, "created_at DESC") + ", id" +
		" LIMIT " + where.Arg(page.Limit()) + " OFFSET " + where.Arg(page.Offset())

	var rows []courseRow
	if err = sqlx.SelectContext(ctx, q, &rows, query, where.Args()...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, total, nil
}

// UpdateCourse never lowers the capacity below the stored count, even if it changed
// since crs was read.
func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(crs.ID) {
		return course.Course{}, course.ErrCourseNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Course{}, err
	}

	var row courseRow
	err = namedGet(ctx, q, &row, `
		UPDATE courses SET
			title = :title,
			description = :description,
			instructor = :instructor,
			category = :category,
			capacity = :capacity,
			status = CASE
				WHEN CAST(:status AS TEXT) = 'CLOSED' THEN 'CLOSED'
				WHEN current_enrollment >= :capacity THEN 'FULL'
				ELSE 'ACTIVE'
			END,
			start_date = :start_date,
			end_date = :end_date,
			duration = :duration,
			price = :price,
			image_url = :image_url,
			updated_at = :updated_at
		WHERE id = :id AND current_enrollment <= :capacity
		RETURNING `+courseColumns, toCourseRow(crs))
	if err == sql.ErrNoRows {
		if _, err = repo.GetCourse(ctx, crs.ID, exec...); err != nil {
			return course.Course{}, err
		}
		return course.Course{}, course.ErrCapacityBelowEnrollment
	}
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return row.course(), nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return course.ErrCourseNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return err
	}

	// enrollments go with it (ON DELETE CASCADE)
	res, err := q.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrCourseNotFound
	}
	return nil
}

func (repo *courseRepository) QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]string, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, err
	}

	cats := make([]string, 0)
	err = sqlx.SelectContext(ctx, q, &cats, `SELECT DISTINCT category FROM courses WHERE category <> '' ORDER BY category`)
	return cats, errors.Wrap(err, "selecting categories")
}

// IncrementEnrollment takes the slot in a single conditional UPDATE: concurrent
// callers serialize on the course row and the last slot goes to exactly one of them.
func (repo *courseRepository) IncrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrCourseNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Course{}, err
	}

	var row courseRow
	err = sqlx.GetContext(ctx, q, &row, `
		UPDATE courses SET
			current_enrollment = current_enrollment + 1,
			status = CASE WHEN current_enrollment + 1 >= capacity THEN 'FULL' ELSE status END,
			updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE' AND current_enrollment < capacity
		RETURNING `+courseColumns, id, core.Now())
	if err == sql.ErrNoRows {
		if _, err = repo.GetCourse(ctx, id, exec...); err != nil {
			return course.Course{}, err
		}
		return course.Course{}, course.ErrCourseUnavailable
	}
	if err != nil {
		return course.Course{}, errors.Wrap(err, "taking course seat")
	}
	return row.course(), nil
}

func (repo *courseRepository) DecrementEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrCourseNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Course{}, err
	}

	var row courseRow
	err = sqlx.GetContext(ctx, q, &row, `
		UPDATE courses SET
			current_enrollment = GREATEST(current_enrollment - 1, 0),
			status = CASE
				WHEN status = 'CLOSED' THEN status
				WHEN GREATEST(current_enrollment - 1, 0) >= capacity THEN 'FULL'
				ELSE 'ACTIVE'
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING `+courseColumns, id, core.Now())
	if err == sql.ErrNoRows {
		return course.Course{}, course.ErrCourseNotFound
	}
	if err != nil {
		return course.Course{}, errors.Wrap(err, "releasing course seat")
	}
	return row.course(), nil
}
