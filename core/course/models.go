package course

import (
	"time"

	"github.com/trezcool/academia/core"
)

// Status is the lifecycle status of a Course.
// ACTIVE and FULL are derived from the enrollment count; CLOSED is set by admins
// and takes the course out of enrollment regardless of its count.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusFull   Status = "FULL"
	StatusClosed Status = "CLOSED"
)

var Statuses = []Status{StatusActive, StatusFull, StatusClosed}

type Course struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Instructor        string     `json:"instructor"`
	Category          string     `json:"category"`
	Capacity          int        `json:"capacity"`
	CurrentEnrollment int        `json:"current_enrollment"`
	Status            Status     `json:"status"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	Duration          string     `json:"duration"`
	Price             int64      `json:"price"`
	ImageURL          string     `json:"image_url"`
	CreatedAt         time.Time  `json:"created_at"` // UTC
	UpdatedAt         time.Time  `json:"updated_at"` // UTC
}

// IsEnrollmentAvailable reports whether one more learner may enroll.
func (c Course) IsEnrollmentAvailable() bool {
	return c.Status == StatusActive && c.CurrentEnrollment < c.Capacity
}

// IncrementEnrollment takes one capacity slot. It does not check availability:
// callers must have checked IsEnrollmentAvailable under the same lock or transaction.
func (c *Course) IncrementEnrollment() {
	c.CurrentEnrollment++
	c.RefreshStatus()
}

// DecrementEnrollment frees one capacity slot, floored at zero.
func (c *Course) DecrementEnrollment() {
	if c.CurrentEnrollment > 0 {
		c.CurrentEnrollment--
	}
	c.RefreshStatus()
}

// RefreshStatus recomputes ACTIVE/FULL from the count. CLOSED is kept as is.
func (c *Course) RefreshStatus() {
	if c.Status == StatusClosed {
		return
	}
	if c.CurrentEnrollment >= c.Capacity {
		c.Status = StatusFull
	} else {
		c.Status = StatusActive
	}
}

// RemainingSeats is the number of free capacity slots.
func (c Course) RemainingSeats() int {
	if n := c.Capacity - c.CurrentEnrollment; n > 0 {
		return n
	}
	return 0
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	Instructor  string     `json:"instructor" validate:"required,max=100"`
	Category    string     `json:"category" validate:"required,max=50"`
	Capacity    int        `json:"capacity" validate:"required,gt=0"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Duration    string     `json:"duration" validate:"max=50"`
	Price       int64      `json:"price" validate:"gte=0"`
	ImageURL    string     `json:"image_url" validate:"omitempty,url"`
}

func (nc *NewCourse) Validate() error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Instructor = core.CleanString(nc.Instructor)
	nc.Category = core.CleanString(nc.Category)
	nc.Duration = core.CleanString(nc.Duration)
	nc.ImageURL = core.CleanString(nc.ImageURL)
	if err := core.Validate.Struct(nc); err != nil {
		return err
	}
	if nc.StartDate != nil && nc.EndDate != nil && nc.EndDate.Before(*nc.StartDate) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: errEndBeforeStart})
	}
	return nil
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields keep their current value. The enrollment count can never be set.
type UpdateCourse struct {
	Title       string     `json:"title" validate:"max=200"`
	Description *string    `json:"description"`
	Instructor  string     `json:"instructor" validate:"max=100"`
	Category    string     `json:"category" validate:"max=50"`
	Capacity    int        `json:"capacity" validate:"gte=0"`
	Status      Status     `json:"status" validate:"omitempty,coursestatus"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Duration    *string    `json:"duration" validate:"omitempty,max=50"`
	Price       *int64     `json:"price" validate:"omitempty,gte=0"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,url"`
}

func (uc *UpdateCourse) Validate(orig Course) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Instructor = core.CleanString(uc.Instructor)
	uc.Category = core.CleanString(uc.Category)
	if err := core.Validate.Struct(uc); err != nil {
		return err
	}

	capacity := orig.Capacity
	if uc.Capacity > 0 {
		capacity = uc.Capacity
	}
	if capacity < orig.CurrentEnrollment {
		return ErrCapacityBelowEnrollment
	}

	start, end := orig.StartDate, orig.EndDate
	if uc.StartDate != nil {
		start = uc.StartDate
	}
	if uc.EndDate != nil {
		end = uc.EndDate
	}
	if start != nil && end != nil && end.Before(*start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: errEndBeforeStart})
	}
	return nil
}

// apply returns orig modified by uc. The status is re-derived from the count
// unless the course is (being) closed.
func (uc UpdateCourse) apply(orig Course) Course {
	crs := orig
	if uc.Title != "" {
		crs.Title = uc.Title
	}
	if uc.Description != nil {
		crs.Description = core.CleanString(*uc.Description)
	}
	if uc.Instructor != "" {
		crs.Instructor = uc.Instructor
	}
	if uc.Category != "" {
		crs.Category = uc.Category
	}
	if uc.Capacity > 0 {
		crs.Capacity = uc.Capacity
	}
	if uc.StartDate != nil {
		crs.StartDate = uc.StartDate
	}
	if uc.EndDate != nil {
		crs.EndDate = uc.EndDate
	}
	if uc.Duration != nil {
		crs.Duration = core.CleanString(*uc.Duration)
	}
	if uc.Price != nil {
		crs.Price = *uc.Price
	}
	if uc.ImageURL != nil {
		crs.ImageURL = core.CleanString(*uc.ImageURL)
	}
	switch uc.Status {
	case StatusClosed:
		crs.Status = StatusClosed
	case StatusActive:
		crs.Status = StatusActive // reopen; FULL is derived below
	}
	crs.RefreshStatus()
	return crs
}

type QueryFilter struct {
	Category string
	Status   Status
	Search   string
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
	qf.Search = core.CleanString(qf.Search)
	qf.Status = Status(core.CleanString(string(qf.Status)))
}

// OrderingFields lists the columns courses may be ordered by.
var OrderingFields = []string{"title", "instructor", "category", "capacity", "current_enrollment", "status", "start_date", "price", "created_at", "updated_at"}

// EnrollmentStatus is the approval status of an Enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "PENDING"
	EnrollmentApproved  EnrollmentStatus = "APPROVED"
	EnrollmentRejected  EnrollmentStatus = "REJECTED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// HoldsSeat reports whether an enrollment in this status consumes a capacity slot.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentPending || s == EnrollmentApproved
}

type Enrollment struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	CourseID    string           `json:"course_id"`
	Status      EnrollmentStatus `json:"status"`
	EnrolledAt  time.Time        `json:"enrolled_at"` // UTC
	ApprovedAt  *time.Time       `json:"approved_at"` // UTC
	UpdatedAt   time.Time        `json:"updated_at"`  // UTC
	CourseTitle string           `json:"course_title,omitempty"`
	UserName    string           `json:"user_name,omitempty"`
	UserEmail   string           `json:"user_email,omitempty"`
}

// EnrollmentFilter selects enrollments; empty fields are ignored.
type EnrollmentFilter struct {
	UserID   string
	CourseID string
	Status   EnrollmentStatus
}

// NewEnrollment is an enrollment request. UserID is only honoured for admins;
// everyone else enrolls themselves.
type NewEnrollment struct {
	CourseID string `json:"course_id" validate:"required"`
	UserID   string `json:"user_id"`
}

func (ne *NewEnrollment) Validate() error {
	ne.CourseID = core.CleanString(ne.CourseID)
	ne.UserID = core.CleanString(ne.UserID)
	return core.Validate.Struct(ne)
}
