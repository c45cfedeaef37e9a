package learning

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/kashur/backend/core"
)

var (
	stepTypeTag  = "steptype"
	stepTypeText = "unknown step type"
)

// InitValidators registers the learning validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(stepTypeTag, stepTypeValidation)
	core.RegisterCustomTranslation(validate, translator, stepTypeTag, stepTypeText)
}

func stepTypeValidation(fl validator.FieldLevel) bool {
	return StepType(fl.Field().String()).IsValid()
}
