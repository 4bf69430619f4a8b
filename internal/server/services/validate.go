package services

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

const (
	maxEmailLength     = 200
	maxNameLength      = 200
	maxTelephoneLength = 20
	minPasswordLength  = 8
	// bcrypt rejects inputs longer than 72 bytes.
	maxPasswordLength = 72
)

func validateEmail(email string) (string, error) {
	email = common.NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLength {
		return "", newError(ReasonInvalidEmail)
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", newError(ReasonInvalidEmail)
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", newError(ReasonInvalidName)
	}
	return name, nil
}

func validateTelephone(telephone string) (string, error) {
	telephone = strings.TrimSpace(telephone)
	if utf8.RuneCountInString(telephone) > maxTelephoneLength {
		return "", newError(ReasonInvalidTelephone)
	}
	return telephone, nil
}

// validatePassword requires a lower and an upper case letter, a digit and a
// non-alphanumeric character, no whitespace, and 8 to 72 bytes.
func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return newError(ReasonWeakPassword)
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return newError(ReasonWeakPassword)
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return newError(ReasonWeakPassword)
	}
	return nil
}
