package course

import (
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrCourseNotFound      = core.NewNotFoundError("course not found")
	ErrEnrollmentNotFound  = core.NewNotFoundError("enrollment not found")
	ErrUserNotFound        = user.ErrNotFound
	ErrDuplicateEnrollment = core.NewConflictError("user is already enrolled in this course")
	ErrCourseUnavailable   = core.NewConflictError("course is not available for enrollment")
	ErrInvalidTransition   = core.NewConflictError("invalid enrollment status transition")

	ErrCapacityBelowEnrollment = core.NewValidationError(nil, core.FieldError{Field: "capacity", Error: errCapacityBelowEnrollment})

	errCapacityBelowEnrollment = "capacity cannot be lower than the current enrollment"
	errEndBeforeStart          = "end date cannot be before start date"
)
