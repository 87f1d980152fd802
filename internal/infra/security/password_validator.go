package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/bazarhub/auth-service/internal/core/port"
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StrengthValidator enforces length, composition, and zxcvbn score
// requirements on new passwords.
type StrengthValidator struct {
	minLength int
	minScore  int
}

// NewStrengthValidator constructs a validator. minScore follows the zxcvbn
// 0-4 scale.
func NewStrengthValidator(minLength int, minScore int) *StrengthValidator {
	if minLength <= 0 {
		minLength = 8
	}
	if minScore < 0 {
		minScore = 0
	}
	if minScore > 4 {
		minScore = 4
	}
	return &StrengthValidator{minLength: minLength, minScore: minScore}
}

// Validate returns the first policy violation, or nil when the password is
// acceptable. userInputs carry identifiers such as username and email so
// passwords derived from them score poorly.
func (v *StrengthValidator) Validate(password string, userInputs ...string) error {
	if len([]rune(password)) < v.minLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", v.minLength),
		}
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return &PasswordValidationError{
			Code:    "letter",
			Message: "password must include at least one letter",
		}
	}
	if !hasDigit {
		return &PasswordValidationError{
			Code:    "digit",
			Message: "password must include at least one digit",
		}
	}

	for _, input := range userInputs {
		if input == "" {
			continue
		}
		if strings.EqualFold(password, input) {
			return &PasswordValidationError{
				Code:    "user_input",
				Message: "password must not match your personal information",
			}
		}
	}

	result := zxcvbn.PasswordStrength(password, userInputs)
	if result.Score < v.minScore {
		return &PasswordValidationError{
			Code:    "strength",
			Message: "password is too weak; avoid common words and repeated patterns",
		}
	}

	return nil
}

var _ port.PasswordStrengthValidator = (*StrengthValidator)(nil)
