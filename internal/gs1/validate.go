package gs1

import "fmt"

// Reason classifies why a value cannot be encoded.
type Reason string

const (
	ReasonMissingRequired   Reason = "missing_required"
	ReasonTooLong           Reason = "too_long"
	ReasonTooShort          Reason = "too_short"
	ReasonInvalidCharacters Reason = "invalid_characters"
	ReasonInvalidCheckDigit Reason = "invalid_check_digit"
	ReasonInvalidValue      Reason = "invalid_value"
	ReasonInvalidFormat     Reason = "invalid_format"
)

// ValueError reports a value that violates its AI's rules.
type ValueError struct {
	AI     AI
	Reason Reason
	Detail string
}

func (e *ValueError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("AI %s: %s", e.AI.Code, e.Reason)
	}
	return fmt.Sprintf("AI %s: %s: %s", e.AI.Code, e.Reason, e.Detail)
}

// Validate checks value against the AI's length, character set and check
// digit rules. Length is checked before content.
func (a AI) Validate(value string) error {
	if value == "" {
		return &ValueError{AI: a, Reason: ReasonMissingRequired}
	}
	if max := a.MaxLen(); len(value) > max {
		return &ValueError{AI: a, Reason: ReasonTooLong, Detail: fmt.Sprintf("%d characters, max %d", len(value), max)}
	}
	if a.Fixed > 0 && len(value) < a.Fixed {
		return &ValueError{AI: a, Reason: ReasonTooShort, Detail: fmt.Sprintf("%d characters, need %d", len(value), a.Fixed)}
	}

	switch a.Kind {
	case Numeric:
		if i := firstNonDigit(value); i >= 0 {
			return &ValueError{AI: a, Reason: ReasonInvalidCharacters, Detail: fmt.Sprintf("%q at position %d is not a digit", value[i], i+1)}
		}
	case CSET82:
		if i := firstNonCSET82(value); i >= 0 {
			return &ValueError{AI: a, Reason: ReasonInvalidCharacters, Detail: fmt.Sprintf("%q at position %d is not in GS1 character set 82", value[i], i+1)}
		}
	}

	if a.CheckDigit && !ValidCheckDigit(value) {
		want, _ := CheckDigit(value[:len(value)-1])
		return &ValueError{AI: a, Reason: ReasonInvalidCheckDigit, Detail: fmt.Sprintf("expected check digit %c", want)}
	}
	return nil
}

func firstNonDigit(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return i
		}
	}
	return -1
}

// cset82 is the GS1 AI encodable character set 82.
var cset82 [128]bool

func init() {
	for _, c := range "!\"%&'()*+,-./0123456789:;<=>?ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz" {
		cset82[c] = true
	}
}

func firstNonCSET82(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] >= 128 || !cset82[s[i]] {
			return i
		}
	}
	return -1
}

// InCSET82 reports whether every byte of s is in character set 82.
func InCSET82(s string) bool {
	return firstNonCSET82(s) < 0
}
