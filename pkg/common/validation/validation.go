package validation

import (
	"strings"
	"time"

	pferrors "github.com/vnykmshr/patientflow/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return pferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegativeInt validates that an integer value is >= 0.
func ValidateNonNegativeInt(module, field string, value int) error {
	if value < 0 {
		return pferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidateNonNegative validates that a numeric value is non-negative (>= 0).
func ValidateNonNegative(module, field string, value float64) error {
	if value < 0 {
		return pferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidateNonNegativeDuration validates that a duration is >= 0.
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return pferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 to disable or a positive duration")
	}
	return nil
}

// ValidateOneOf validates that value is one of the allowed strings.
func ValidateOneOf(module, field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return pferrors.NewValidationError(module, field, value, "unsupported value").
		WithHint("expected one of: " + strings.Join(allowed, ", "))
}
