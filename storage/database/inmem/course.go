package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.db.write(exec)()

	crs.CurrentEnrollment = 0
	crs.RefreshStatus()
	repo.db.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.db.read(exec)()

	if crs, ok := repo.db.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrCourseNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, page core.PageRequest, exec ...core.DBExecutor) ([]course.Course, int, error) {
	defer repo.db.read(exec)()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		if filter == nil || matchCourse(crs, filter) {
			courses = append(courses, crs)
		}
	}
	sortCourses(courses, ordering)

	start, end := core.Paginate(len(courses), page)
	return courses[start:end], len(courses), nil
}

func matchCourse(crs course.Course, filter *course.QueryFilter) bool {
	if filter.Category != "" && !strings.EqualFold(crs.Category, filter.Category) {
		return false
	}
	if filter.Status != "" && crs.Status != filter.Status {
		return false
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		return strings.Contains(strings.ToLower(crs.Title), s) ||
			strings.Contains(strings.ToLower(crs.Description), s) ||
			strings.Contains(strings.ToLower(crs.Instructor), s)
	}
	return true
}

// sortCourses orders courses by ordering, then by creation date (newest first).
func sortCourses(courses []course.Course, ordering []core.DBOrdering) {
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		for _, ord := range ordering {
			cmp := compareCourseField(a, b, ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func compareCourseField(a, b course.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "instructor":
		return strings.Compare(a.Instructor, b.Instructor)
	case "category":
		return strings.Compare(a.Category, b.Category)
	case "capacity":
		return compareInt(a.Capacity, b.Capacity)
	case "current_enrollment":
		return compareInt(a.CurrentEnrollment, b.CurrentEnrollment)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "start_date":
		return compareTimePtr(a.StartDate, b.StartDate)
	case "price":
		return compareInt(int(a.Price), int(b.Price))
	case "created_at":
		return compareTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.db.write(exec)()

	orig, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	crs.CurrentEnrollment = orig.CurrentEnrollment
	crs.CreatedAt = orig.CreatedAt
	crs.RefreshStatus()
	repo.db.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string, exec ...core.DBExecutor) error {
	defer repo.db.write(exec)()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrCourseNotFound
	}
	delete(repo.db.courses, id)
	for eid, enr := range repo.db.enrollments {
		if enr.CourseID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	return nil
}

func (repo *courseRepository) QueryCategories(_ context.Context, exec ...core.DBExecutor) ([]string, error) {
	defer repo.db.read(exec)()

	seen := make(map[string]bool)
	categories := make([]string, 0)
	for _, crs := range repo.db.courses {
		if !seen[crs.Category] {
			seen[crs.Category] = true
			categories = append(categories, crs.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (repo *courseRepository) IncrementEnrollment(_ context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.db.write(exec)()

	crs, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	if !crs.IsEnrollmentAvailable() {
		return course.Course{}, course.ErrCourseUnavailable
	}
	crs.IncrementEnrollment()
	crs.UpdatedAt = core.Now()
	repo.db.courses[id] = crs
	return crs, nil
}

func (repo *courseRepository) DecrementEnrollment(_ context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	defer repo.db.write(exec)()

	if _, ok := repo.db.courses[id]; !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	return repo.db.releaseSeat(id), nil
}

// releaseSeat frees one slot of course id. The caller holds the write lock.
func (db *DB) releaseSeat(id string) course.Course {
	crs, ok := db.courses[id]
	if !ok {
		return course.Course{}
	}
	crs.DecrementEnrollment()
	crs.UpdatedAt = core.Now()
	db.courses[id] = crs
	return crs
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareTimePtr sorts nil times first.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareTime(*a, *b)
}
