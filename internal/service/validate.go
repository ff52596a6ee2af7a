package service

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator возвращает общий экземпляр validator.
// Имена полей в ошибках берутся из тега field (как в API).
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("field"); name != "" {
				return name
			}
			return strings.ToLower(f.Name)
		})
	})
	return validate
}

// validateParams проверяет структуру параметров и возвращает
// *ValidationError со всеми проблемными полями в порядке объявления.
func validateParams(params any) error {
	err := getValidator().Struct(params)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}

	missing := true
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		if fe.Tag() != "required" {
			missing = false
		}
	}

	ve := &ValidationError{Fields: fields}
	if !missing {
		ve.Message = "некорректные значения полей: " + strings.Join(fields, ", ")
	}
	return ve
}
