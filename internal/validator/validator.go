// Package validator wraps go-playground/validator/v10 behind a single
// ValidateRequest entrypoint, the way request DTOs validate themselves
// elsewhere in this codebase.
package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	ierr "github.com/rankgate/rankgate/internal/errors"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
	})
	return instance
}

// ValidateRequest runs struct-tag validation over req and translates any
// failure into the builder-style InternalError used across this codebase.
func ValidateRequest(req interface{}) error {
	if err := get().Struct(req); err != nil {
		return ierr.NewError("request validation failed").
			WithHint(err.Error()).
			Mark(ierr.ErrRequestInvalid)
	}
	return nil
}
