package intake

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Result is the outcome of validating one field value.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

const (
	minNameLength    = 2
	minCompanyLength = 2
	minMessageLength = 20
	minPhoneDigits   = 8
	maxPhoneDigits   = 16
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9\s\-().]+$`)
)

type rule func(value string) Result

var rules = map[Field]rule{
	FieldName:    validateName,
	FieldEmail:   validateEmail,
	FieldPhone:   validatePhone,
	FieldMessage: validateMessage,
	FieldCompany: validateCompany,
}

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Message: msg} }

// Validate applies the rule declared for field. Fields without a rule are
// always valid. It has no side effects.
func Validate(field Field, value string) Result {
	r, found := rules[field]
	if !found {
		return ok()
	}
	return r(value)
}

func trimmedLen(value string) int {
	return utf8.RuneCountInString(strings.TrimSpace(value))
}

func validateName(value string) Result {
	switch n := trimmedLen(value); {
	case n == 0:
		return fail("Name is required")
	case n < minNameLength:
		return fail("Name must be at least 2 characters")
	}
	return ok()
}

func validateEmail(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return fail("Email is required")
	}
	if !emailPattern.MatchString(value) {
		return fail("Please enter a valid email address")
	}
	return ok()
}

func validatePhone(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return ok()
	}
	if !phonePattern.MatchString(value) {
		return fail("Please enter a valid phone number")
	}
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return fail("Please enter a valid phone number")
	}
	return ok()
}

func validateMessage(value string) Result {
	switch n := trimmedLen(value); {
	case n == 0:
		return fail("Project description is required")
	case n < minMessageLength:
		return fail("Please provide more details (at least 20 characters)")
	}
	return ok()
}

func validateCompany(value string) Result {
	if n := trimmedLen(value); n > 0 && n < minCompanyLength {
		return fail("Company name must be at least 2 characters")
	}
	return ok()
}
