package repository

import (
	"errors"
	"fmt"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
)

// Classify maps adapter and registry errors onto the caller-facing
// taxonomy. Errors that already carry a kind pass through unchanged.
func Classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, ErrNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Message: msg + ": not found on provider", Err: err}
	case errors.Is(err, ErrProviderUnavailable):
		return &apperr.Error{Kind: apperr.KindInvalid, Message: msg + ": provider not configured", Err: err}
	case errors.Is(err, ErrUnsupported):
		return &apperr.Error{Kind: apperr.KindInvalid, Message: msg + ": not supported by provider", Err: err}
	}
	return apperr.Provider(err, "%s", msg)
}
