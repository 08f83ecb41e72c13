package sale

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizePhoneNumber brings Russian numbers to +7XXXXXXXXXX. Other
// numbers keep their digits and a leading plus.
func NormalizePhoneNumber(phone string) string {
	cleaned := digits(phone)

	if strings.HasPrefix(cleaned, "7") && len(cleaned) == 11 {
		return "+" + cleaned
	}
	if strings.HasPrefix(cleaned, "8") && len(cleaned) == 11 {
		return "+7" + cleaned[1:]
	}
	if strings.HasPrefix(cleaned, "9") && len(cleaned) == 10 {
		return "+7" + cleaned
	}
	return "+" + cleaned
}

var fakeNumbers = map[string]bool{
	"0000000000": true,
	"1111111111": true,
	"1234567890": true,
	"9999999999": true,
	"0123456789": true,
}

func IsValidPhoneNumber(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}
	if !strings.HasPrefix(phone, "+") && !unicode.IsDigit(rune(phone[0])) {
		return false
	}

	cleaned := digits(phone)
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}
	if fakeNumbers[cleaned] || fakeNumbers[strings.TrimPrefix(cleaned, "7")] {
		return false
	}
	return true
}

func validatePhone(fl validator.FieldLevel) bool {
	return IsValidPhoneNumber(fl.Field().String())
}
