// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/ncstore/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся номер программы или версия).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrStorage — ошибка записи или чтения файла ревизии.
	ErrStorage = errors.New("ошибка файлового хранилища")
	// ErrTooLarge — файл превышает NC_MAX_UPLOAD_SIZE.
	ErrTooLarge = errors.New("файл превышает максимальный размер")
)

// ValidationError — ошибка валидации со списком проблемных полей.
// errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	// Fields — имена отсутствующих или некорректных полей
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("отсутствуют обязательные поля: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// invalidField — ValidationError для одного поля с сообщением.
func invalidField(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: []string{field}, Message: fmt.Sprintf(format, args...)}
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
// Сообщение репозитория сохраняется в тексте ошибки.
func mapRepoError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, what, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s: %v", ErrConflict, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
