package auth

import (
	"fmt"
	"strings"
)

const (
	defaultMinPasswordLength = 8
	defaultAllowedSymbols    = "!@_"
)

// Password rule identifiers, reported inside PolicyViolation so callers can
// tell the user which rule failed.
const (
	RuleLength        = "length"
	RuleCharset       = "charset"
	RuleSensitiveData = "sensitive-data"
	RuleComposition   = "composition"
	RuleRepeatedRun   = "repeated-run"
	RuleSequentialRun = "sequential-run"
)

// PasswordPolicy holds the tunable parts of the password rules. The allowed
// symbol set and minimum length come from configuration; everything else is
// fixed policy.
type PasswordPolicy struct {
	MinLength      int
	AllowedSymbols string
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      defaultMinPasswordLength,
		AllowedSymbols: defaultAllowedSymbols,
	}
}

// PolicyViolation reports the first password rule a candidate failed.
type PolicyViolation struct {
	Rule    string
	Message string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("password policy: %s: %s", e.Rule, e.Message)
}

func violation(rule, format string, args ...any) error {
	return &PolicyViolation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// ValidatePassword evaluates a candidate password against every rule and
// returns a *PolicyViolation for the first failing one. birth and tel are
// the member's birth date and phone number as entered; only their digits
// matter here. The function is pure and never stores the candidate.
func ValidatePassword(password, birth, tel string, policy PasswordPolicy) error {
	if policy.MinLength <= 0 {
		policy.MinLength = defaultMinPasswordLength
	}
	if policy.AllowedSymbols == "" {
		policy.AllowedSymbols = defaultAllowedSymbols
	}

	if len(password) < policy.MinLength {
		return violation(RuleLength, "must be at least %d characters", policy.MinLength)
	}

	for _, r := range password {
		if !isAllowedChar(r, policy.AllowedSymbols) {
			return violation(RuleCharset, "only letters, digits, and %s are allowed", policy.AllowedSymbols)
		}
	}

	if err := checkSensitiveData(password, birth, tel); err != nil {
		return err
	}

	if err := checkComposition(password, policy.AllowedSymbols); err != nil {
		return err
	}

	if hasRepeatedRun(password, 3) {
		return violation(RuleRepeatedRun, "must not repeat the same character 3 or more times in a row")
	}

	if hasSequentialDigitRun(password) {
		return violation(RuleSequentialRun, "must not contain 3 sequential digits")
	}

	return nil
}

func isAllowedChar(r rune, symbols string) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	default:
		return strings.ContainsRune(symbols, r)
	}
}

// checkSensitiveData rejects passwords that embed the member's birth date or
// phone number. Sanitizing either value to nothing is itself a rejection:
// with no reference data the check cannot vouch for the password.
func checkSensitiveData(password, birth, tel string) error {
	birthDigits := digitsOnly(birth)
	telDigits := digitsOnly(tel)
	if birthDigits == "" || telDigits == "" {
		return violation(RuleSensitiveData, "birth date and phone number are required to vet the password")
	}

	fragments := []string{birthDigits, telDigits}
	if len(birthDigits) > 2 {
		// Year and month+day count as separate fragments: a password hiding
		// either half of the birth date is still rejected.
		fragments = append(fragments, birthDigits[:2], birthDigits[2:])
	}
	if len(birthDigits) >= 4 {
		fragments = append(fragments, birthDigits[len(birthDigits)-4:])
	}

	for _, fragment := range fragments {
		if strings.Contains(password, fragment) {
			return violation(RuleSensitiveData, "must not contain your birth date or phone number")
		}
	}

	return nil
}

func checkComposition(password, symbols string) error {
	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(symbols, r):
			hasSymbol = true
		}
	}
	if !hasLetter || !hasDigit || !hasSymbol {
		return violation(RuleComposition, "must contain at least one letter, one digit, and one of %s", symbols)
	}
	return nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasRepeatedRun(s string, limit int) bool {
	run := 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run >= limit {
			return true
		}
	}
	return false
}

// hasSequentialDigitRun reports whether s contains three consecutive digit
// characters stepping exactly +1 or -1 ("123", "321" — not "112" or "135").
func hasSequentialDigitRun(s string) bool {
	bytes := []byte(s)
	for i := 0; i+2 < len(bytes); i++ {
		a, b, c := bytes[i], bytes[i+1], bytes[i+2]
		if a < '0' || a > '9' || b < '0' || b > '9' || c < '0' || c > '9' {
			continue
		}
		if (b == a+1 && c == b+1) || (b == a-1 && c == b-1) {
			return true
		}
	}
	return false
}
