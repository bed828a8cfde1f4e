package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type enrollmentRepository struct {
	db *DB
}

var _ course.EnrollmentRepository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	defer repo.db.write(exec)()

	for _, e := range repo.db.enrollments {
		if e.UserID == enr.UserID && e.CourseID == enr.CourseID {
			return course.Enrollment{}, course.ErrDuplicateEnrollment
		}
	}
	repo.db.enrollments[enr.ID] = enr
	return repo.db.withRefs(enr), nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string, exec ...core.DBExecutor) (course.Enrollment, error) {
	defer repo.db.read(exec)()

	if enr, ok := repo.db.enrollments[id]; ok {
		return repo.db.withRefs(enr), nil
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *enrollmentRepository) EnrollmentExists(_ context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.read(exec)()

	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *enrollmentRepository) TransitionEnrollment(_ context.Context, enr course.Enrollment, from course.EnrollmentStatus, exec ...core.DBExecutor) (course.Enrollment, error) {
	defer repo.db.write(exec)()

	stored, ok := repo.db.enrollments[enr.ID]
	if !ok {
		return course.Enrollment{}, course.ErrEnrollmentNotFound
	}
	if stored.Status != from {
		return course.Enrollment{}, errors.Wrapf(course.ErrInvalidTransition, "enrollment is %s", stored.Status)
	}
	stored.Status = enr.Status
	stored.ApprovedAt = enr.ApprovedAt
	stored.UpdatedAt = enr.UpdatedAt
	repo.db.enrollments[enr.ID] = stored
	return repo.db.withRefs(stored), nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, filter course.EnrollmentFilter, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	defer repo.db.read(exec)()

	enrs := make([]course.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if filter.UserID != "" && enr.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && enr.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && enr.Status != filter.Status {
			continue
		}
		enrs = append(enrs, repo.db.withRefs(enr))
	}
	sort.SliceStable(enrs, func(i, j int) bool {
		if !enrs[i].EnrolledAt.Equal(enrs[j].EnrolledAt) {
			return enrs[i].EnrolledAt.After(enrs[j].EnrolledAt)
		}
		return enrs[i].ID < enrs[j].ID
	})
	return enrs, nil
}

// withRefs fills the course and user details of enr, as a SQL join would.
func (db *DB) withRefs(enr course.Enrollment) course.Enrollment {
	if crs, ok := db.courses[enr.CourseID]; ok {
		enr.CourseTitle = crs.Title
	}
	if usr, ok := db.users[enr.UserID]; ok {
		enr.UserName = usr.Name
		enr.UserEmail = usr.Email
	}
	return enr
}
