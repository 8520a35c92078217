package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var lock = &sync.Mutex{}
var validate *validator.Validate

func getValidator() *validator.Validate {
	if validate == nil {
		lock.Lock()
		defer lock.Unlock()
		if validate == nil {
			validate = validator.New(validator.WithRequiredStructEnabled())
			// lease durations are either infinite (-1) or between 15 and 60 seconds
			_ = validate.RegisterValidation("lease_duration", func(fl validator.FieldLevel) bool {
				v := fl.Field().Int()
				return v == -1 || (v >= 15 && v <= 60)
			})
		}
	}
	return validate
}

func ValidateStruct(s interface{}) error {
	return getValidator().Struct(s)
}

func TranslateError(err error) map[string]string {
	errors := make(map[string]string)
	if err == nil {
		return errors
	}
	for _, err := range err.(validator.ValidationErrors) {
		errors[err.Field()] = err.Error()
	}
	return errors
}
