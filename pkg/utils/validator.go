package utils

import (
	"fmt"
	"strings"
)

// ValidateCNPJ validates a Brazilian company tax id (CNPJ): 14 digits with
// two check digits. Punctuation is tolerated; "12.345.678/0001-95" and
// "12345678000195" validate the same.
func ValidateCNPJ(cnpj string) error {
	digits := DigitsOnly(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("cnpj must have 14 digits: %s", cnpj)
	}

	// All-equal sequences pass the check-digit math but are not valid ids.
	if strings.Count(digits, digits[0:1]) == 14 {
		return fmt.Errorf("invalid cnpj: %s", cnpj)
	}

	if checkDigit(digits[:12]) != int(digits[12]-'0') {
		return fmt.Errorf("invalid cnpj check digit: %s", cnpj)
	}
	if checkDigit(digits[:13]) != int(digits[13]-'0') {
		return fmt.Errorf("invalid cnpj check digit: %s", cnpj)
	}
	return nil
}

// DigitsOnly strips everything but decimal digits
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// checkDigit computes the CNPJ modulus-11 check digit over the given prefix
func checkDigit(prefix string) int {
	weight := len(prefix) - 7
	sum := 0
	for _, r := range prefix {
		sum += int(r-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
