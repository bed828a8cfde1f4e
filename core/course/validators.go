package course

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	courseStatusTag  = "coursestatus"
	courseStatusText = "status must be one of ACTIVE or CLOSED"
)

func init() {
	_ = core.Validate.RegisterValidation(courseStatusTag, courseStatusValidation)
	core.RegisterCustomTranslation(courseStatusTag, courseStatusText)
}

// courseStatusValidation only allows the statuses an admin may set; FULL is derived.
func courseStatusValidation(fl validator.FieldLevel) bool {
	switch Status(fl.Field().String()) {
	case StatusActive, StatusClosed:
		return true
	}
	return false
}
