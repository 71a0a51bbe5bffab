package pin

import (
	"strings"

	"github.com/vdutts/vault/internal/util"
)

// Length is the number of digits in a PIN.
const Length = 4

// ValidatePin reports whether pin is exactly Length ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) != Length {
		return validationErrorf("PIN must be exactly %d digits", Length)
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return validationErrorf("PIN must be exactly %d digits", Length)
		}
	}
	return nil
}

// Normalize turns raw keypad or text-field input into PIN candidate digits:
// compatibility forms are folded (full-width digits count), every other
// character is dropped, and the result is truncated to Length digits.
func Normalize(value string) string {
	var b strings.Builder
	for _, r := range util.Normalize(value) {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == Length {
			break
		}
	}
	return b.String()
}
