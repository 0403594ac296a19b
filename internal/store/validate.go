package store

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/safar/go-storefront/internal/database"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// required returns a validation error for the first blank field, in order.
func required(fields ...[2]string) error {
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			return database.NewValidationError(f[0], "is required")
		}
	}
	return nil
}

func validateLength(field, val string, max int) error {
	if utf8.RuneCountInString(val) > max {
		return database.NewValidationError(field, "is too long")
	}
	return nil
}
