package course_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
)

func TestCatalog_Create(t *testing.T) {
	e := newEnv(t)

	crs, err := e.catalog.Create(e.ctx, course.NewCourse{
		Title:      "  Intro to Go ",
		Instructor: "Rob",
		Category:   "Engineering",
		Capacity:   20,
		Price:      4900,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, crs.ID)
	assert.Equal(t, "Intro to Go", crs.Title)
	assert.Equal(t, course.StatusActive, crs.Status)
	assert.Zero(t, crs.CurrentEnrollment)

	_, err = e.catalog.Create(e.ctx, course.NewCourse{Title: "No seats", Instructor: "Rob", Category: "Engineering"})
	assert.Error(t, err)
}

func TestCatalog_Query(t *testing.T) {
	e := newEnv(t)
	for _, c := range []struct{ title, category string }{
		{"Go Basics", "Engineering"},
		{"Advanced Go", "Engineering"},
		{"Watercolor", "Art"},
	} {
		crs := e.course(t, 3)
		_, err := e.catalog.Update(e.ctx, crs.ID, course.UpdateCourse{Title: c.title, Category: c.category})
		require.NoError(t, err)
	}

	tests := []struct {
		name       string
		filter     *course.QueryFilter
		ordering   []core.DBOrdering
		page       core.PageRequest
		wantTitles []string
		wantTotal  int
	}{
		{
			name:       "all by title",
			ordering:   []core.DBOrdering{{Field: "title", Ascending: true}},
			wantTitles: []string{"Advanced Go", "Go Basics", "Watercolor"},
			wantTotal:  3,
		},
		{
			name:       "category",
			filter:     &course.QueryFilter{Category: "engineering"},
			ordering:   []core.DBOrdering{{Field: "title"}},
			wantTitles: []string{"Go Basics", "Advanced Go"},
			wantTotal:  2,
		},
		{
			name:       "search",
			filter:     &course.QueryFilter{Search: "  color "},
			wantTitles: []string{"Watercolor"},
			wantTotal:  1,
		},
		{
			name:       "unknown ordering ignored, paged",
			ordering:   []core.DBOrdering{{Field: "password"}, {Field: "TITLE", Ascending: true}},
			page:       core.PageRequest{Page: 1, Size: 2},
			wantTitles: []string{"Watercolor"},
			wantTotal:  3,
		},
		{
			name:      "status",
			filter:    &course.QueryFilter{Status: course.StatusFull},
			wantTotal: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, total, err := e.catalog.Query(e.ctx, tt.filter, tt.ordering, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			titles := make([]string, 0, len(courses))
			for _, crs := range courses {
				titles = append(titles, crs.Title)
			}
			if tt.wantTitles == nil {
				assert.Empty(t, titles)
			} else {
				assert.Equal(t, tt.wantTitles, titles)
			}
		})
	}

	cats, err := e.catalog.Categories(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Art", "Engineering"}, cats)
}

func TestCatalog_Update(t *testing.T) {
	e := newEnv(t)
	crs := e.course(t, 2)
	for i := 1; i <= 2; i++ {
		_, err := e.ledger.Enroll(e.ctx, e.learner(t, i).ID, crs.ID)
		require.NoError(t, err)
	}
	e.requireCourse(t, crs.ID, 2, course.StatusFull)

	t.Run("capacity below enrollment", func(t *testing.T) {
		_, err := e.catalog.Update(e.ctx, crs.ID, course.UpdateCourse{Capacity: 1})
		require.Error(t, err)
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok)
		e.requireCourse(t, crs.ID, 2, course.StatusFull)
	})

	t.Run("raising capacity reopens", func(t *testing.T) {
		upd, err := e.catalog.Update(e.ctx, crs.ID, course.UpdateCourse{Capacity: 3})
		require.NoError(t, err)
		assert.Equal(t, course.StatusActive, upd.Status)
		assert.Equal(t, 2, upd.CurrentEnrollment)
	})

	t.Run("closed course keeps its status on release", func(t *testing.T) {
		_, err := e.catalog.Update(e.ctx, crs.ID, course.UpdateCourse{Status: course.StatusClosed})
		require.NoError(t, err)

		enrs, err := e.ledger.ListForCourse(e.ctx, crs.ID)
		require.NoError(t, err)
		require.NotEmpty(t, enrs)
		_, err = e.ledger.Reject(e.ctx, enrs[0].ID)
		require.NoError(t, err)
		e.requireCourse(t, crs.ID, 1, course.StatusClosed)

		_, err = e.ledger.Enroll(e.ctx, e.learner(t, 9).ID, crs.ID)
		assert.Equal(t, course.ErrCourseUnavailable, errors.Cause(err))
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := e.catalog.Update(e.ctx, "nope", course.UpdateCourse{Title: "x"})
		assert.Equal(t, course.ErrCourseNotFound, errors.Cause(err))
	})
}

func TestCatalog_DecrementAtZero(t *testing.T) {
	e := newEnv(t)
	crs := e.course(t, 1)

	got, err := e.catalog.DecrementEnrollment(e.ctx, crs.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentEnrollment)
	assert.Equal(t, course.StatusActive, got.Status)
}

func TestCatalog_DeleteCascades(t *testing.T) {
	e := newEnv(t)
	crs := e.course(t, 2)
	enr, err := e.ledger.Enroll(e.ctx, e.learner(t, 1).ID, crs.ID)
	require.NoError(t, err)

	require.NoError(t, e.catalog.Delete(e.ctx, crs.ID))

	_, err = e.catalog.Get(e.ctx, crs.ID)
	assert.True(t, core.IsNotFound(err))
	_, err = e.ledger.Get(e.ctx, enr.ID)
	assert.Equal(t, course.ErrEnrollmentNotFound, errors.Cause(err))

	assert.Equal(t, course.ErrCourseNotFound, errors.Cause(e.catalog.Delete(e.ctx, crs.ID)))
}
