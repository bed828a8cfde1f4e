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

// enrollmentSelect reads enrollments from e with the course title and learner of each.
const enrollmentSelect = `
	SELECT e.id, e.user_id, e.course_id, e.status, e.enrolled_at, e.approved_at, e.updated_at,
		c.title AS course_title, u.name AS user_name, u.email AS user_email
	FROM e
	JOIN courses c ON c.id = e.course_id
	JOIN users u ON u.id = e.user_id`

type enrollmentRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	CourseID    string    `db:"course_id"`
	Status      string    `db:"status"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	ApprovedAt  null.Time `db:"approved_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	CourseTitle string    `db:"course_title"`
	UserName    string    `db:"user_name"`
	UserEmail   string    `db:"user_email"`
}

func toEnrollmentRow(enr course.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:         enr.ID,
		UserID:     enr.UserID,
		CourseID:   enr.CourseID,
		Status:     string(enr.Status),
		EnrolledAt: enr.EnrolledAt.UTC(),
		ApprovedAt: null.TimeFromPtr(enr.ApprovedAt),
		UpdatedAt:  enr.UpdatedAt.UTC(),
	}
}

func (r enrollmentRow) enrollment() course.Enrollment {
	return course.Enrollment{
		ID:          r.ID,
		UserID:      r.UserID,
		CourseID:    r.CourseID,
		Status:      course.EnrollmentStatus(r.Status),
		EnrolledAt:  r.EnrolledAt.UTC(),
		ApprovedAt:  utcPtr(r.ApprovedAt),
		UpdatedAt:   r.UpdatedAt.UTC(),
		CourseTitle: r.CourseTitle,
		UserName:    r.UserName,
		UserEmail:   r.UserEmail,
	}
}

type enrollmentRepository struct {
	repo
}

var _ course.EnrollmentRepository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{repo{db: db}}
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Enrollment{}, err
	}

	var row enrollmentRow
	err = namedGet(ctx, q, &row, `
		WITH e AS (
			INSERT INTO enrollments (id, user_id, course_id, status, enrolled_at, approved_at, updated_at)
			VALUES (:id, :user_id, :course_id, :status, :enrolled_at, :approved_at, :updated_at)
			RETURNING *
		)`+enrollmentSelect, toEnrollmentRow(enr))
	if err != nil {
		if isUniqueViolation(err) {
			return course.Enrollment{}, course.ErrDuplicateEnrollment
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Enrollment, error) {
	if !validID(id) {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Enrollment{}, err
	}

	var row enrollmentRow
	query := `WITH e AS (SELECT * FROM enrollments WHERE id = $1)` + enrollmentSelect
	if err = sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrEnrollmentNotFound
		}
		return course.Enrollment{}, errors.Wrap(err, "selecting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) EnrollmentExists(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error) {
	if !validID(userID) || !validID(courseID) {
		return false, nil
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return false, err
	}

	var exists bool
	err = sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`, userID, courseID)
	return exists, errors.Wrap(err, "checking enrollment")
}

func (repo *enrollmentRepository) TransitionEnrollment(
	ctx context.Context,
	enr course.Enrollment,
	from course.EnrollmentStatus,
	exec ...core.DBExecutor,
) (course.Enrollment, error) {
	if !validID(enr.ID) {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	q, err := repo.getExec(exec)
	if err != nil {
		return course.Enrollment{}, err
	}

	arg := struct {
		enrollmentRow
		From string `db:"from_status"`
	}{toEnrollmentRow(enr), string(from)}

	var row enrollmentRow
	err = namedGet(ctx, q, &row, `
		WITH e AS (
			UPDATE enrollments SET status = :status, approved_at = :approved_at, updated_at = :updated_at
			WHERE id = :id AND status = :from_status
			RETURNING *
		)`+enrollmentSelect, arg)
	if err == sql.ErrNoRows {
		cur, gerr := repo.GetEnrollment(ctx, enr.ID, exec...)
		if gerr != nil {
			return course.Enrollment{}, gerr
		}
		return course.Enrollment{}, errors.Wrapf(course.ErrInvalidTransition, "enrollment is %s", cur.Status)
	}
	if err != nil {
		return course.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return row.enrollment(), nil
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, filter course.EnrollmentFilter, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	q, err := repo.getExec(exec)
	if err != nil {
		return nil, err
	}

	var where database.Where
	if filter.UserID != "" {
		if !validID(filter.UserID) {
			return []course.Enrollment{}, nil
		}
		where.Add("user_id = ?", filter.UserID)
	}
	if filter.CourseID != "" {
		if !validID(filter.CourseID) {
			return []course.Enrollment{}, nil
		}
		where.Add("course_id = ?", filter.CourseID)
	}
	if filter.Status != "" {
		where.Add("status = ?", string(filter.Status))
	}

	var rows []enrollmentRow
	query := `WITH e AS (SELECT * FROM enrollments` + where.String() + `)` + enrollmentSelect +
		` ORDER BY e.enrolled_at DESC, e.id`
	if err = sqlx.SelectContext(ctx, q, &rows, query, where.Args()...); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrs := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.enrollment())
	}
	return enrs, nil
}
