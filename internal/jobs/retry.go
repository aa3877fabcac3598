package jobs

import (
	"errors"

	"github.com/dvloznov/finanzas/internal/domain"
)

// Retryable reports whether another attempt could succeed. Malformed input
// and rejected credentials fail the same way every time.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrAuthentication),
		errors.Is(err, domain.ErrDuplicateID),
		errors.Is(err, domain.ErrConfirmationRequired),
		errors.Is(err, domain.ErrUnsafeQuery):
		return false
	}
	return true
}
