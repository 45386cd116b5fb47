package domain

import (
	"fmt"
	"regexp"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidatePositiveAmount checks that a price or valuation is positive.
func ValidatePositiveAmount(field string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%s must be positive, got %d", field, amount)
	}
	return nil
}

// ValidatePassword enforces the minimum credential length.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// ValidateRoles checks that every role is a known one.
func ValidateRoles(roles []Role) error {
	for _, r := range roles {
		if r != RoleRegular && r != RoleAdmin {
			return fmt.Errorf("unknown role: %s", r)
		}
	}
	return nil
}
