package port

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordStrengthValidator enforces password strength requirements.
type PasswordStrengthValidator interface {
	Validate(password string, userInputs ...string) error
}
