package course

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type (
	EnrollmentRepository interface {
		// CreateEnrollment returns ErrDuplicateEnrollment when the (user, course) pair already exists.
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		// GetEnrollment returns ErrEnrollmentNotFound when no enrollment has this id.
		GetEnrollment(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		// EnrollmentExists reports whether any enrollment, whatever its status, links the user and course.
		EnrollmentExists(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (bool, error)
		// TransitionEnrollment saves enr.Status, enr.ApprovedAt and enr.UpdatedAt only if the stored
		// status still is from, and returns ErrInvalidTransition otherwise.
		TransitionEnrollment(ctx context.Context, enr Enrollment, from EnrollmentStatus, exec ...core.DBExecutor) (Enrollment, error)
		// QueryEnrollments returns matching enrollments, newest first.
		QueryEnrollments(ctx context.Context, filter EnrollmentFilter, exec ...core.DBExecutor) ([]Enrollment, error)
	}

	// UserFinder looks up the learner of an enrollment.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Ledger owns enrollments and their PENDING -> APPROVED | REJECTED | CANCELLED lifecycle.
	// Every transition that takes or frees a capacity slot commits atomically with the
	// matching Catalog counter change.
	Ledger interface {
		Enroll(ctx context.Context, userID, courseID string) (Enrollment, error)
		Approve(ctx context.Context, id string) (Enrollment, error)
		Reject(ctx context.Context, id string) (Enrollment, error)
		Cancel(ctx context.Context, id string) error
		Get(ctx context.Context, id string) (Enrollment, error)
		ListForUser(ctx context.Context, userID string) ([]Enrollment, error)
		ListForCourse(ctx context.Context, courseID string) ([]Enrollment, error)
	}

	ledger struct {
		tx      core.Transactor
		catalog Catalog
		repo    EnrollmentRepository
		users   UserFinder
		mailSvc core.EmailService
		logger  core.Logger
	}
)

var _ Ledger = (*ledger)(nil) // interface compliance check

func NewLedger(
	tx core.Transactor,
	catalog Catalog,
	repo EnrollmentRepository,
	users UserFinder,
	mailSvc core.EmailService,
	logger core.Logger,
) Ledger {
	return &ledger{
		tx:      tx,
		catalog: catalog,
		repo:    repo,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func invalidTransition(action string, from EnrollmentStatus) error {
	return errors.Wrapf(ErrInvalidTransition, "cannot %s a %s enrollment", action, strings.ToLower(string(from)))
}

func (l *ledger) Enroll(ctx context.Context, userID, courseID string) (Enrollment, error) {
	usr, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}

	var enr Enrollment
	err = l.tx.InTx(ctx, func(exec core.DBExecutor) error {
		crs, err := l.catalog.Get(ctx, courseID, exec)
		if err != nil {
			return err
		}

		exists, err := l.repo.EnrollmentExists(ctx, usr.ID, crs.ID, exec)
		if err != nil {
			return errors.Wrap(err, "checking existing enrollment")
		}
		if exists {
			return ErrDuplicateEnrollment
		}
		if !l.catalog.IsEnrollmentAvailable(crs) {
			return ErrCourseUnavailable
		}

		// the conditional increment is authoritative: it fails if the last seat was taken meanwhile
		if crs, err = l.catalog.IncrementEnrollment(ctx, crs.ID, exec); err != nil {
			return err
		}

		now := core.Now()
		enr, err = l.repo.CreateEnrollment(ctx, Enrollment{
			ID:          uuid.New().String(),
			UserID:      usr.ID,
			CourseID:    crs.ID,
			Status:      EnrollmentPending,
			EnrolledAt:  now,
			UpdatedAt:   now,
			CourseTitle: crs.Title,
			UserName:    usr.Name,
			UserEmail:   usr.Email,
		}, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	l.logger.Debug(fmt.Sprintf("enrollment %s: user %s enrolled in course %s", enr.ID, enr.UserID, enr.CourseID))
	return enr, nil
}

func (l *ledger) Approve(ctx context.Context, id string) (Enrollment, error) {
	var (
		enr     Enrollment
		changed bool
	)
	err := l.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if enr, err = l.repo.GetEnrollment(ctx, id, exec); err != nil {
			return err
		}

		switch enr.Status {
		case EnrollmentApproved:
			return nil
		case EnrollmentPending:
		default:
			return invalidTransition("approve", enr.Status)
		}

		now := core.Now()
		enr.Status = EnrollmentApproved
		enr.ApprovedAt = &now
		enr.UpdatedAt = now
		enr, err = l.repo.TransitionEnrollment(ctx, enr, EnrollmentPending, exec)
		changed = err == nil
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	if changed {
		l.notify(ctx, enr)
	}
	return enr, nil
}

func (l *ledger) Reject(ctx context.Context, id string) (Enrollment, error) {
	var (
		enr     Enrollment
		changed bool
	)
	err := l.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if enr, err = l.repo.GetEnrollment(ctx, id, exec); err != nil {
			return err
		}

		from := enr.Status
		switch from {
		case EnrollmentRejected:
			return nil
		case EnrollmentPending, EnrollmentApproved:
		default:
			return invalidTransition("reject", from)
		}

		enr.Status = EnrollmentRejected
		enr.UpdatedAt = core.Now()
		if enr, err = l.repo.TransitionEnrollment(ctx, enr, from, exec); err != nil {
			return err
		}
		if _, err = l.catalog.DecrementEnrollment(ctx, enr.CourseID, exec); err != nil {
			return errors.Wrap(err, "releasing course seat")
		}
		changed = true
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}
	if changed {
		l.notify(ctx, enr)
	}
	return enr, nil
}

func (l *ledger) Cancel(ctx context.Context, id string) error {
	return l.tx.InTx(ctx, func(exec core.DBExecutor) error {
		enr, err := l.repo.GetEnrollment(ctx, id, exec)
		if err != nil {
			return err
		}

		switch enr.Status {
		case EnrollmentCancelled:
			return nil
		case EnrollmentPending:
		default:
			return invalidTransition("cancel", enr.Status)
		}

		// the seat is released from the pre-transition state; the status swap below
		// fails if another request moved the enrollment meanwhile, rolling this back
		if _, err = l.catalog.DecrementEnrollment(ctx, enr.CourseID, exec); err != nil {
			return errors.Wrap(err, "releasing course seat")
		}
		enr.Status = EnrollmentCancelled
		enr.UpdatedAt = core.Now()
		_, err = l.repo.TransitionEnrollment(ctx, enr, EnrollmentPending, exec)
		return err
	})
}

func (l *ledger) Get(ctx context.Context, id string) (Enrollment, error) {
	return l.repo.GetEnrollment(ctx, id)
}

func (l *ledger) ListForUser(ctx context.Context, userID string) ([]Enrollment, error) {
	return l.repo.QueryEnrollments(ctx, EnrollmentFilter{UserID: userID})
}

func (l *ledger) ListForCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	return l.repo.QueryEnrollments(ctx, EnrollmentFilter{CourseID: courseID})
}

// notify emails the learner about the new status of their enrollment.
func (l *ledger) notify(ctx context.Context, enr Enrollment) {
	name, email, title := enr.UserName, enr.UserEmail, enr.CourseTitle
	if email == "" {
		usr, err := l.users.GetByID(ctx, enr.UserID)
		if err != nil {
			l.logger.Error("enrollment notification: finding user", errors.Wrap(err, enr.UserID))
			return
		}
		name, email = usr.Name, usr.Email
	}
	if title == "" {
		crs, err := l.catalog.Get(ctx, enr.CourseID)
		if err != nil {
			l.logger.Error("enrollment notification: finding course", errors.Wrap(err, enr.CourseID))
			return
		}
		title = crs.Title
	}
	if email == "" {
		return
	}

	l.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: email}},
		Subject:      "Enrollment " + strings.ToLower(string(enr.Status)),
		TemplateName: "enrollment_status",
		TemplateData: map[string]interface{}{
			"Name":        name,
			"CourseID":    enr.CourseID,
			"CourseTitle": title,
			"Status":      string(enr.Status),
		},
	})
}
