package gs1

import "errors"

var errNotDigits = errors.New("gs1: check digit input must be non-empty digits")

// CheckDigit computes the GS1 mod-10 check digit for the given digits
// (the data without its check digit). Weights alternate 3,1,3,... from the
// rightmost digit.
func CheckDigit(digits string) (byte, error) {
	if digits == "" || firstNonDigit(digits) >= 0 {
		return 0, errNotDigits
	}
	sum := 0
	weight := 3
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight = 4 - weight
	}
	return byte('0' + (10-sum%10)%10), nil
}

// ValidCheckDigit reports whether the last digit of s is the correct
// check digit for the digits before it.
func ValidCheckDigit(s string) bool {
	if len(s) < 2 {
		return false
	}
	want, err := CheckDigit(s[:len(s)-1])
	if err != nil {
		return false
	}
	return s[len(s)-1] == want
}
