package board

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	boardTypeTag  = "boardtype"
	boardTypeText = "board type must be one of NOTICE, QNA or FAQ"
)

func init() {
	_ = core.Validate.RegisterValidation(boardTypeTag, boardTypeValidation)
	core.RegisterCustomTranslation(boardTypeTag, boardTypeText)
}

func boardTypeValidation(fl validator.FieldLevel) bool {
	bt := BoardType(fl.Field().String())
	for _, t := range BoardTypes {
		if t == bt {
			return true
		}
	}
	return false
}
