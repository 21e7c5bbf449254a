package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	ErrInvalidQuery           = errors.New("invalid query")
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrAllBackendsUnavailable = errors.New("all retrieval backends unavailable")
	ErrGenerationFailure      = errors.New("answer generation failed")
	ErrFusionInputMismatch    = errors.New("fusion input mismatch")
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
