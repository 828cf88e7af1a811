package registration

import (
	"strings"
	"unicode"

	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
)

// Validator checks one field value. A non-empty hint means the value was
// rejected and the step is asked again.
type Validator func(value string) (hint string)

// Validators maps field steps to their checks. Steps without an entry accept
// any non-empty text.
type Validators map[domain.Step]Validator

// ValidatorsFor returns the validator set for a configured mode.
func ValidatorsFor(mode string) Validators {
	if mode != config.ValidationStrict {
		return Validators{}
	}
	return Validators{
		domain.StepNIK:   validNIK,
		domain.StepPhone: validPhone,
	}
}

func (v Validators) check(step domain.Step, value string) string {
	fn, ok := v[step]
	if !ok || fn == nil {
		return ""
	}
	return fn(value)
}

func validNIK(value string) string {
	if len(value) != 16 || !allDigits(value) {
		return "NIK harus 16 digit angka sesuai KTP ya."
	}
	return ""
}

func validPhone(value string) string {
	digits := strings.TrimPrefix(value, "+")
	if len(digits) < 8 || len(digits) > 15 || !allDigits(digits) {
		return "Nomor HP harus 8 sampai 15 digit angka (boleh diawali +)."
	}
	return ""
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
