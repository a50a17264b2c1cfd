package domain

import (
	"errors"
	"fmt"
)

var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrGuidanceNotFound  = errors.New("guidance not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrExtraction        = errors.New("document extraction failed")
	ErrInference         = errors.New("inference failed")
	ErrSourceUnavailable = errors.New("guidance source unavailable")
	ErrSourceFormat      = errors.New("guidance source format invalid")
	ErrSourceSchema      = errors.New("guidance source schema invalid")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
