package course

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func TestCourse_Enrollment(t *testing.T) {
	tests := []struct {
		name          string
		crs           Course
		op            func(c *Course)
		wantCount     int
		wantStatus    Status
		wantAvailable bool
	}{
		{
			name:          "increment below capacity",
			crs:           Course{Capacity: 3, CurrentEnrollment: 1, Status: StatusActive},
			op:            (*Course).IncrementEnrollment,
			wantCount:     2,
			wantStatus:    StatusActive,
			wantAvailable: true,
		},
		{
			name:       "increment to capacity",
			crs:        Course{Capacity: 2, CurrentEnrollment: 1, Status: StatusActive},
			op:         (*Course).IncrementEnrollment,
			wantCount:  2,
			wantStatus: StatusFull,
		},
		{
			name:          "decrement from full",
			crs:           Course{Capacity: 2, CurrentEnrollment: 2, Status: StatusFull},
			op:            (*Course).DecrementEnrollment,
			wantCount:     1,
			wantStatus:    StatusActive,
			wantAvailable: true,
		},
		{
			name:       "decrement over capacity stays full",
			crs:        Course{Capacity: 2, CurrentEnrollment: 4, Status: StatusFull},
			op:         (*Course).DecrementEnrollment,
			wantCount:  3,
			wantStatus: StatusFull,
		},
		{
			name:          "decrement at zero",
			crs:           Course{Capacity: 2, Status: StatusActive},
			op:            (*Course).DecrementEnrollment,
			wantCount:     0,
			wantStatus:    StatusActive,
			wantAvailable: true,
		},
		{
			name:       "decrement keeps closed",
			crs:        Course{Capacity: 2, CurrentEnrollment: 2, Status: StatusClosed},
			op:         (*Course).DecrementEnrollment,
			wantCount:  1,
			wantStatus: StatusClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crs := tt.crs
			tt.op(&crs)
			assert.Equal(t, tt.wantCount, crs.CurrentEnrollment)
			assert.Equal(t, tt.wantStatus, crs.Status)
			assert.Equal(t, tt.wantAvailable, crs.IsEnrollmentAvailable())
		})
	}
}

func TestCourse_RemainingSeats(t *testing.T) {
	assert.Equal(t, 2, Course{Capacity: 3, CurrentEnrollment: 1}.RemainingSeats())
	assert.Equal(t, 0, Course{Capacity: 3, CurrentEnrollment: 3}.RemainingSeats())
	assert.Equal(t, 0, Course{Capacity: 3, CurrentEnrollment: 5}.RemainingSeats())
}

func TestEnrollmentStatus_HoldsSeat(t *testing.T) {
	assert.True(t, EnrollmentPending.HoldsSeat())
	assert.True(t, EnrollmentApproved.HoldsSeat())
	assert.False(t, EnrollmentRejected.HoldsSeat())
	assert.False(t, EnrollmentCancelled.HoldsSeat())
}

func TestNewCourse_Validate(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 2, 0)

	tests := []struct {
		name      string
		nc        NewCourse
		wantField string
	}{
		{name: "missing title", nc: NewCourse{Instructor: "I", Category: "C", Capacity: 1}, wantField: "title"},
		{name: "zero capacity", nc: NewCourse{Title: "T", Instructor: "I", Category: "C"}, wantField: "capacity"},
		{name: "negative capacity", nc: NewCourse{Title: "T", Instructor: "I", Category: "C", Capacity: -2}, wantField: "capacity"},
		{name: "negative price", nc: NewCourse{Title: "T", Instructor: "I", Category: "C", Capacity: 1, Price: -1}, wantField: "price"},
		{name: "bad image url", nc: NewCourse{Title: "T", Instructor: "I", Category: "C", Capacity: 1, ImageURL: "nope"}, wantField: "image_url"},
		{
			name:      "end before start",
			nc:        NewCourse{Title: "T", Instructor: "I", Category: "C", Capacity: 1, StartDate: &end, EndDate: &start},
			wantField: "end_date",
		},
		{
			name: "valid",
			nc:   NewCourse{Title: " Go 101 ", Instructor: "I", Category: "Dev", Capacity: 10, StartDate: &start, EndDate: &end},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nc.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, fieldsOf(err), tt.wantField)
		})
	}
}

func TestUpdateCourse_ValidateAndApply(t *testing.T) {
	orig := Course{Title: "Go", Instructor: "I", Category: "Dev", Capacity: 5, CurrentEnrollment: 3, Status: StatusActive}

	t.Run("capacity below enrollment", func(t *testing.T) {
		uc := UpdateCourse{Capacity: 2}
		err := uc.Validate(orig)
		require.Error(t, err)
		assert.Contains(t, fieldsOf(err), "capacity")
	})

	t.Run("status cannot be set to full", func(t *testing.T) {
		uc := UpdateCourse{Status: StatusFull}
		require.Error(t, uc.Validate(orig))
	})

	t.Run("capacity equal to enrollment makes it full", func(t *testing.T) {
		uc := UpdateCourse{Capacity: 3}
		require.NoError(t, uc.Validate(orig))
		crs := uc.apply(orig)
		assert.Equal(t, 3, crs.Capacity)
		assert.Equal(t, StatusFull, crs.Status)
	})

	t.Run("close then reopen", func(t *testing.T) {
		uc := UpdateCourse{Status: StatusClosed}
		require.NoError(t, uc.Validate(orig))
		crs := uc.apply(orig)
		assert.Equal(t, StatusClosed, crs.Status)

		uc = UpdateCourse{Status: StatusActive}
		require.NoError(t, uc.Validate(crs))
		crs = uc.apply(crs)
		assert.Equal(t, StatusActive, crs.Status)
		assert.Equal(t, orig.CurrentEnrollment, crs.CurrentEnrollment)
	})

	t.Run("reopen at capacity is full", func(t *testing.T) {
		closed := orig
		closed.Status, closed.CurrentEnrollment = StatusClosed, orig.Capacity
		uc := UpdateCourse{Status: StatusActive}
		require.NoError(t, uc.Validate(closed))
		crs := uc.apply(closed)
		assert.Equal(t, StatusFull, crs.Status)
	})
}

func fieldsOf(err error) []string {
	var fields []string
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range e {
			fields = append(fields, fe.Field())
		}
	case *core.ValidationError:
		for _, f := range e.Fields {
			fields = append(fields, f.Field)
		}
	}
	return fields
}
